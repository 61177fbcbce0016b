// Package dispatcher turns triggers into queued workflow runs.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/asdev/flowrunner/pkg/dsl"
	"github.com/asdev/flowrunner/pkg/eventbus"
	"github.com/asdev/flowrunner/pkg/events"
	"github.com/asdev/flowrunner/pkg/models"
	"github.com/asdev/flowrunner/pkg/queue"
	"github.com/google/uuid"
)

const DefaultMaxAttempts = 3

// Request describes one run to enqueue. RunID is generated when empty,
// MaxAttempts defaults to the dispatcher's (DefaultMaxAttempts unless set)
// and AvailableAt to now.
type Request struct {
	RunID       string
	Workflow    json.RawMessage
	Trigger     map[string]any
	MaxAttempts int
	AvailableAt time.Time
}

type Dispatcher struct {
	queue       queue.Queue
	bus         eventbus.EventPublisher
	logger      *slog.Logger
	now         func() time.Time
	maxAttempts int
}

type Option func(*Dispatcher)

// WithEventPublisher publishes a run.queued event for every dispatched run.
func WithEventPublisher(bus eventbus.EventPublisher) Option {
	return func(d *Dispatcher) {
		d.bus = bus
	}
}

// WithMaxAttempts sets the job attempts used when a request leaves them unset.
func WithMaxAttempts(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

func New(q queue.Queue, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		queue:       q,
		logger:      logger.With("module", "dispatcher"),
		now:         time.Now,
		maxAttempts: DefaultMaxAttempts,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Dispatch validates the workflow and enqueues a job for the run. An invalid
// workflow returns a *dsl.ValidationError and enqueues nothing.
func (d *Dispatcher) Dispatch(ctx context.Context, request Request) (*models.QueueJob, error) {
	workflow, err := dsl.Parse(request.Workflow)
	if err != nil {
		return nil, err
	}

	trigger := request.Trigger
	if trigger == nil {
		trigger = map[string]any{}
	}

	payload, err := json.Marshal(models.RunPayload{Workflow: request.Workflow, Trigger: trigger})
	if err != nil {
		return nil, fmt.Errorf("failed to encode run payload: %w", err)
	}

	job := models.QueueJob{
		ID:          uuid.NewString(),
		RunID:       request.RunID,
		Payload:     payload,
		AvailableAt: request.AvailableAt,
		MaxAttempts: request.MaxAttempts,
	}

	if job.RunID == "" {
		job.RunID = uuid.NewString()
	}

	if job.MaxAttempts <= 0 {
		job.MaxAttempts = d.maxAttempts
	}

	if job.AvailableAt.IsZero() {
		job.AvailableAt = d.now()
	}

	err = d.queue.Enqueue(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue run %s: %w", job.RunID, err)
	}

	logger := d.logger.With("run_id", job.RunID, "job_id", job.ID, "workflow", workflow.Name)
	logger.InfoContext(ctx, "Run queued", "available_at", job.AvailableAt)

	if d.bus != nil {
		err = d.bus.Publish(ctx, job.RunID, events.RunQueued{
			BaseEvent:   events.NewBaseEvent(uuid.NewString(), events.RunQueuedEvent, job.RunID),
			JobID:       job.ID,
			Workflow:    workflow.Name,
			TriggerType: workflow.Trigger.Type,
			TriggerData: trigger,
			AvailableAt: job.AvailableAt,
			MaxAttempts: job.MaxAttempts,
		})
		if err != nil {
			// the run is queued either way
			logger.ErrorContext(ctx, "Failed to publish run queued event", "error", err)
		}
	}

	return &job, nil
}
