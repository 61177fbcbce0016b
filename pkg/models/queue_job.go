package models

import (
	"encoding/json"
	"time"
)

// QueueJob is a schedulable unit of work held by a queue backend.
type QueueJob struct {
	ID          string          `json:"id"`
	RunID       string          `json:"runId"`
	StepID      string          `json:"stepId,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	AvailableAt time.Time       `json:"availableAt"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
}

// Exhausted reports whether one more failure would use up the job's budget.
func (j QueueJob) Exhausted() bool {
	return j.Attempts+1 >= j.MaxAttempts
}

// RunPayload is what the dispatcher stores in a job's payload for a workflow run.
type RunPayload struct {
	Workflow json.RawMessage `json:"workflow"`
	Trigger  map[string]any  `json:"trigger"`
}

// DecodeRunPayload reads a RunPayload out of a job payload.
func DecodeRunPayload(raw json.RawMessage) (*RunPayload, error) {
	var payload RunPayload

	err := json.Unmarshal(raw, &payload)
	if err != nil {
		return nil, err
	}

	if payload.Trigger == nil {
		payload.Trigger = map[string]any{}
	}

	return &payload, nil
}
