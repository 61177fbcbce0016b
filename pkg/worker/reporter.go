package worker

import (
	"context"
	"fmt"

	"github.com/asdev/flowrunner/pkg/eventbus"
	"github.com/asdev/flowrunner/pkg/events"
	"github.com/asdev/flowrunner/pkg/models"
	"github.com/asdev/flowrunner/pkg/workflow"
	"github.com/google/uuid"
)

// EventReporter publishes run logs as events: one step.attempted per log
// entry, then run.succeeded or run.failed.
type EventReporter struct {
	bus      eventbus.EventPublisher
	workerID string
}

var _ Reporter = (*EventReporter)(nil)

func NewEventReporter(bus eventbus.EventPublisher, workerID string) *EventReporter {
	return &EventReporter{bus: bus, workerID: workerID}
}

func (r *EventReporter) base(eventType events.EventType, runID string) events.BaseEvent {
	base := events.NewBaseEvent(uuid.NewString(), eventType, runID)
	base.WorkerID = r.workerID

	return base
}

func (r *EventReporter) ReportRun(ctx context.Context, job models.QueueJob, result *workflow.ExecutionResult) error {
	for _, entry := range result.Logs {
		err := r.bus.Publish(ctx, job.RunID, events.StepAttempted{
			BaseEvent: r.base(events.StepAttemptedEvent, job.RunID),
			JobID:     job.ID,
			Log:       entry,
		})
		if err != nil {
			return fmt.Errorf("failed to publish step log %s/%d: %w", entry.StepID, entry.Attempt, err)
		}
	}

	duration := result.FinishedAt.Sub(result.StartedAt)

	var event eventbus.Event

	if result.Status == models.RunStatusSucceeded {
		outputs := make(map[string]map[string]any, len(result.Outputs))
		for stepID, output := range result.Outputs {
			outputs[stepID] = output.Output
		}

		event = events.RunSucceeded{
			BaseEvent: r.base(events.RunSucceededEvent, job.RunID),
			JobID:     job.ID,
			Workflow:  result.Workflow,
			Attempts:  job.Attempts + 1,
			Outputs:   outputs,
			Duration:  duration,
		}
	} else {
		failed := events.RunFailed{
			BaseEvent: r.base(events.RunFailedEvent, job.RunID),
			JobID:     job.ID,
			Workflow:  result.Workflow,
			Attempts:  job.Attempts + 1,
			Duration:  duration,
		}

		if n := len(result.Logs); n > 0 {
			failed.FailedStepID = result.Logs[n-1].StepID
			failed.Error = result.Logs[n-1].ErrorMessage
		}

		event = failed
	}

	err := r.bus.Publish(ctx, job.RunID, event)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.GetType(), err)
	}

	return nil
}

func (r *EventReporter) ReportDeadLetter(ctx context.Context, job models.QueueJob, reason string) error {
	err := r.bus.Publish(ctx, job.RunID, events.RunDeadLettered{
		BaseEvent: r.base(events.RunDeadLetteredEvent, job.RunID),
		JobID:     job.ID,
		Attempts:  job.Attempts + 1,
		Reason:    reason,
	})
	if err != nil {
		return fmt.Errorf("failed to publish dead letter: %w", err)
	}

	return nil
}
