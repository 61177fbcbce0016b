// Package worker claims queued runs, executes them and settles their jobs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/asdev/flowrunner/pkg/dsl"
	"github.com/asdev/flowrunner/pkg/models"
	"github.com/asdev/flowrunner/pkg/otelhelper"
	"github.com/asdev/flowrunner/pkg/protocol"
	"github.com/asdev/flowrunner/pkg/queue"
	"github.com/asdev/flowrunner/pkg/workflow"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/asdev/flowrunner/pkg/worker"

// Executor runs one workflow. *workflow.Executor implements it.
type Executor interface {
	ExecuteWorkflow(ctx context.Context, input workflow.ExecutionInput) (*workflow.ExecutionResult, error)
}

// Reporter is the sink for run logs and dead letters.
type Reporter interface {
	ReportRun(ctx context.Context, job models.QueueJob, result *workflow.ExecutionResult) error
	ReportDeadLetter(ctx context.Context, job models.QueueJob, reason string) error
}

type Worker struct {
	id         string
	queue      queue.Queue
	executor   Executor
	connectors protocol.ConnectorRuntime
	reporter   Reporter
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time

	concurrency     int
	pollInterval    time.Duration
	reaperInterval  time.Duration
	staleAfter      time.Duration
	retryInitial    time.Duration
	retryMax        time.Duration
	retryJitter     float64
	retryFailedRuns bool
}

func New(
	q queue.Queue,
	executor Executor,
	connectors protocol.ConnectorRuntime,
	reporter Reporter,
	opts ...Option,
) *Worker {
	w := &Worker{
		id:             "worker-" + uuid.NewString()[:8],
		queue:          q,
		executor:       executor,
		connectors:     connectors,
		reporter:       reporter,
		logger:         slog.Default(),
		tracer:         otelhelper.Tracer(tracerName),
		now:            time.Now,
		concurrency:    DefaultConcurrency,
		pollInterval:   DefaultPollInterval,
		reaperInterval: DefaultReaperInterval,
		staleAfter:     DefaultStaleAfter,
		retryInitial:   DefaultRetryInitial,
		retryMax:       DefaultRetryMax,
		retryJitter:    DefaultRetryJitter,
	}

	for _, opt := range opts {
		opt(w)
	}

	w.logger = w.logger.With("module", "worker", "worker_id", w.id)

	return w
}

func (w *Worker) ID() string {
	return w.id
}

// Run processes jobs with the configured concurrency, plus the stale claim
// reaper, until ctx is done. Claim errors are logged and retried after the
// poll interval; they never stop the worker.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker", "concurrency", w.concurrency, "poll_interval", w.pollInterval)

	group, ctx := errgroup.WithContext(ctx)

	for slot := range w.concurrency {
		group.Go(func() error {
			w.loop(ctx, slot)

			return nil
		})
	}

	if w.reaperInterval > 0 && w.staleAfter > 0 {
		group.Go(func() error {
			w.reap(ctx)

			return nil
		})
	}

	err := group.Wait()

	w.logger.InfoContext(ctx, "Worker stopped")

	return err
}

func (w *Worker) loop(ctx context.Context, slot int) {
	logger := w.logger.With("slot", slot)

	for {
		processed, err := w.ProcessNext(ctx)
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			logger.ErrorContext(ctx, "Failed to process job", "error", err)
		}

		if processed && err == nil {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.pollInterval):
		}
	}
}

func (w *Worker) reap(ctx context.Context) {
	ticker := time.NewTicker(w.reaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := w.ReleaseStale(ctx)
			if err != nil && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "Failed to release stale claims", "error", err)
			}
		}
	}
}

// ReleaseStale frees claims older than the stale threshold.
func (w *Worker) ReleaseStale(ctx context.Context) (int, error) {
	return w.queue.ReleaseStale(ctx, w.now().Add(-w.staleAfter))
}

// ProcessNext claims and settles at most one job. It reports whether a job
// was claimed.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.queue.ClaimNext(ctx, w.now())
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}

	if job == nil {
		return false, nil
	}

	return true, w.process(ctx, *job)
}

func (w *Worker) process(ctx context.Context, job models.QueueJob) error {
	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "worker.job",
		attribute.String(otelhelper.JobIDKey, job.ID),
		attribute.String(otelhelper.RunIDKey, job.RunID),
		attribute.Int(otelhelper.JobAttemptsKey, job.Attempts),
		attribute.String(otelhelper.WorkerIDKey, w.id),
	)
	defer span.End()

	logger := w.logger.With("job_id", job.ID, "run_id", job.RunID, "attempts", job.Attempts)
	logger.InfoContext(ctx, "Claimed job")

	payload, err := models.DecodeRunPayload(job.Payload)
	if err != nil {
		otelhelper.SetError(span, err)

		return w.deadLetter(ctx, logger, job, fmt.Sprintf("invalid run payload: %v", err))
	}

	result, err := w.executor.ExecuteWorkflow(ctx, workflow.ExecutionInput{
		RunID:      job.RunID,
		Trigger:    payload.Trigger,
		DSL:        payload.Workflow,
		Connectors: w.connectors,
	})

	var validationErr *dsl.ValidationError
	if errors.As(err, &validationErr) {
		otelhelper.SetError(span, err)

		return w.deadLetter(ctx, logger, job, validationErr.Error())
	}

	if result != nil {
		reportCtx, cancel := finalizeContext(ctx)
		reportErr := w.reporter.ReportRun(reportCtx, job, result)
		cancel()

		if reportErr != nil && err == nil {
			err = fmt.Errorf("failed to report run: %w", reportErr)
		}
	}

	if err == nil && w.retryFailedRuns && result.Status == models.RunStatusFailed {
		err = errors.New("run failed")
	}

	if err != nil {
		otelhelper.SetError(span, err)

		return w.retry(ctx, logger, job, err)
	}

	logger.InfoContext(ctx, "Run finished", "status", result.Status, "log_entries", len(result.Logs))

	return w.ack(ctx, job)
}

// retry puts the job back with a backoff delay, or dead letters it when its
// attempts are used up.
func (w *Worker) retry(ctx context.Context, logger *slog.Logger, job models.QueueJob, cause error) error {
	if job.Exhausted() {
		return w.deadLetter(ctx, logger, job, fmt.Sprintf("attempts exhausted: %v", cause))
	}

	delay := w.RetryDelay(job.Attempts)
	next := w.now().Add(delay)

	logger.WarnContext(ctx, "Rescheduling job", "error", cause, "delay", delay, "available_at", next)

	failCtx, cancel := finalizeContext(ctx)
	defer cancel()

	_, err := w.queue.Fail(failCtx, job.ID, next)
	if err != nil {
		return fmt.Errorf("failed to reschedule job %s: %w", job.ID, err)
	}

	return nil
}

func (w *Worker) deadLetter(ctx context.Context, logger *slog.Logger, job models.QueueJob, reason string) error {
	logger.ErrorContext(ctx, "Dead lettering job", "reason", reason)

	reportCtx, cancel := finalizeContext(ctx)
	defer cancel()

	err := w.reporter.ReportDeadLetter(reportCtx, job, reason)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to report dead letter", "error", err)
	}

	return w.ack(ctx, job)
}

func (w *Worker) ack(ctx context.Context, job models.QueueJob) error {
	ackCtx, cancel := finalizeContext(ctx)
	defer cancel()

	existed, err := w.queue.Ack(ackCtx, job.ID)
	if err != nil {
		return fmt.Errorf("failed to ack job %s: %w", job.ID, err)
	}

	if !existed {
		w.logger.WarnContext(ctx, "Acked job was already gone", "job_id", job.ID)
	}

	return nil
}

// finalizeContext lets a job be settled while the worker shuts down.
func finalizeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
}

// RetryDelay is the exponential backoff delay after a job's attempts-th
// failure: the first failure waits about the initial interval.
func (w *Worker) RetryDelay(attempts int) time.Duration {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     w.retryInitial,
		RandomizationFactor: w.retryJitter,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         w.retryMax,
	}
	b.Reset()

	delay := b.NextBackOff()
	for range attempts {
		delay = b.NextBackOff()
	}

	return delay
}
