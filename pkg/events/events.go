// Package events defines the run lifecycle events published by dispatchers
// and workers.
package events

import (
	"time"

	"github.com/asdev/flowrunner/pkg/models"
)

type EventType string

// Topic every run lifecycle event is published on.
const Topic = "flowrunner.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	RunQueuedEvent       EventType = "run.queued"
	StepAttemptedEvent   EventType = "step.attempted"
	RunSucceededEvent    EventType = "run.succeeded"
	RunFailedEvent       EventType = "run.failed"
	RunDeadLetteredEvent EventType = "run.dead_lettered"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent fills the common fields of an event.
func NewBaseEvent(id string, eventType EventType, runID string) BaseEvent {
	return BaseEvent{
		ID:        id,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		RunID:     runID,
	}
}

type RunQueued struct {
	BaseEvent

	JobID       string         `json:"job_id"`
	Workflow    string         `json:"workflow"`
	TriggerType string         `json:"trigger_type"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
	AvailableAt time.Time      `json:"available_at"`
	MaxAttempts int            `json:"max_attempts"`
}

func (RunQueued) GetType() EventType {
	return RunQueuedEvent
}

// StepAttempted carries one entry of a run's log.
type StepAttempted struct {
	BaseEvent

	JobID string            `json:"job_id"`
	Log   models.StepRunLog `json:"log"`
}

func (StepAttempted) GetType() EventType {
	return StepAttemptedEvent
}

type RunSucceeded struct {
	BaseEvent

	JobID    string                    `json:"job_id"`
	Workflow string                    `json:"workflow"`
	Attempts int                       `json:"attempts"`
	Outputs  map[string]map[string]any `json:"outputs,omitempty"`
	Duration time.Duration             `json:"duration"`
}

func (RunSucceeded) GetType() EventType {
	return RunSucceededEvent
}

type RunFailed struct {
	BaseEvent

	JobID        string        `json:"job_id"`
	Workflow     string        `json:"workflow"`
	Attempts     int           `json:"attempts"`
	FailedStepID string        `json:"failed_step_id"`
	Error        string        `json:"error"`
	Duration     time.Duration `json:"duration"`
}

func (RunFailed) GetType() EventType {
	return RunFailedEvent
}

// RunDeadLettered is published when a job is given up on without a result.
type RunDeadLettered struct {
	BaseEvent

	JobID    string `json:"job_id"`
	Attempts int    `json:"attempts"`
	Reason   string `json:"reason"`
}

func (RunDeadLettered) GetType() EventType {
	return RunDeadLetteredEvent
}
