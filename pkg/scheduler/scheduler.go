// Package scheduler dispatches runs of workflows triggered by core.schedule
// on their cron expression.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/asdev/flowrunner/pkg/dispatcher"
	"github.com/asdev/flowrunner/pkg/dsl"
	"github.com/asdev/flowrunner/pkg/models"
	"github.com/robfig/cron/v3"
)

// TriggerType is the trigger handled by the scheduler.
const TriggerType = "core.schedule"

var (
	ErrCronRequired      = errors.New("schedule trigger cron expression is required")
	ErrWorkflowScheduled = errors.New("workflow already scheduled")
	ErrUnknownWorkflow   = errors.New("workflow is not scheduled")
)

// Dispatcher enqueues runs. *dispatcher.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, request dispatcher.Request) (*models.QueueJob, error)
}

type entry struct {
	id       cron.EntryID
	cronExpr string
	workflow json.RawMessage
}

type Scheduler struct {
	dispatcher Dispatcher
	logger     *slog.Logger
	cron       *cron.Cron
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

func New(d Dispatcher, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		dispatcher: d,
		logger:     logger.With("module", "scheduler"),
		now:        time.Now,
		entries:    make(map[string]entry),
	}

	for _, opt := range opts {
		opt(s)
	}

	cronLogger := &cronLogger{logger: s.logger}
	s.cron = cron.New(cron.WithLogger(cronLogger), cron.WithChain(
		cron.SkipIfStillRunning(cronLogger),
		cron.Recover(cronLogger),
	))

	return s
}

// LoadDir registers every *.json workflow in dir. Files whose trigger is not
// core.schedule are skipped. It returns the number of workflows scheduled.
func (s *Scheduler) LoadDir(dir string) (int, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, err
	}

	slices.Sort(files)

	scheduled := 0

	for _, file := range files {
		raw, err := os.ReadFile(file)
		if err != nil {
			return scheduled, fmt.Errorf("failed to read workflow %s: %w", file, err)
		}

		ok, err := s.Register(raw)
		if err != nil {
			return scheduled, fmt.Errorf("failed to schedule workflow %s: %w", file, err)
		}

		if ok {
			scheduled++
		} else {
			s.logger.Debug("Skipping workflow without schedule trigger", "file", file)
		}
	}

	return scheduled, nil
}

// Register validates the workflow and adds a cron entry for it. It reports
// false without error when the workflow is not triggered by core.schedule.
func (s *Scheduler) Register(raw json.RawMessage) (bool, error) {
	workflow, err := dsl.Parse(raw)
	if err != nil {
		return false, err
	}

	if workflow.Trigger.Type != TriggerType {
		return false, nil
	}

	cronExpr, _ := workflow.Trigger.Config["cron"].(string)
	if cronExpr == "" {
		return false, fmt.Errorf("workflow '%s': %w", workflow.Name, ErrCronRequired)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[workflow.Name]; exists {
		return false, fmt.Errorf("workflow '%s': %w", workflow.Name, ErrWorkflowScheduled)
	}

	name := workflow.Name

	id, err := s.cron.AddFunc(cronExpr, func() {
		_, err := s.Fire(context.Background(), name)
		if err != nil {
			s.logger.Error("Failed to dispatch scheduled run", "workflow", name, "error", err)
		}
	})
	if err != nil {
		return false, fmt.Errorf("invalid cron expression '%s': %w", cronExpr, err)
	}

	s.entries[name] = entry{id: id, cronExpr: cronExpr, workflow: raw}

	s.logger.Info("Scheduled workflow", "workflow", name, "cron", cronExpr)

	return true, nil
}

// Fire dispatches one run of a scheduled workflow, as a cron tick does.
func (s *Scheduler) Fire(ctx context.Context, name string) (*models.QueueJob, error) {
	s.mu.Lock()
	e, exists := s.entries[name]
	s.mu.Unlock()

	if !exists {
		return nil, fmt.Errorf("workflow '%s': %w", name, ErrUnknownWorkflow)
	}

	job, err := s.dispatcher.Dispatch(ctx, dispatcher.Request{
		Workflow: e.workflow,
		Trigger: map[string]any{
			"timestamp": s.now().UTC().Format(time.RFC3339),
			"cron":      e.cronExpr,
			"workflow":  name,
		},
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Dispatched scheduled run", "workflow", name, "run_id", job.RunID, "job_id", job.ID)

	return job, nil
}

// Workflows returns the scheduled workflow names, sorted.
func (s *Scheduler) Workflows() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// Next returns when the workflow fires next. It is zero before Start.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	e, exists := s.entries[name]
	s.mu.Unlock()

	if !exists {
		return time.Time{}, false
	}

	return s.cron.Entry(e.id).Next, true
}

// Run starts the cron loop and blocks until ctx is done, then waits for
// running ticks to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Starting scheduler", "workflows", len(s.Workflows()))

	s.cron.Start()

	<-ctx.Done()

	s.logger.Info("Stopping scheduler")

	<-s.cron.Stop().Done()

	return nil
}

// cronLogger routes cron's own logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
