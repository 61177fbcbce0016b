package models

import "time"

// StepStatus is the outcome of a single step attempt.
type StepStatus string

const (
	StepStatusSucceeded StepStatus = "SUCCEEDED"
	StepStatusFailed    StepStatus = "FAILED"
)

// RunStatus is the final outcome of a workflow run.
type RunStatus string

const (
	RunStatusSucceeded RunStatus = "SUCCEEDED"
	RunStatusFailed    RunStatus = "FAILED"
)

// StepRunLog is one entry of a run's audit trail, one per attempt.
type StepRunLog struct {
	RunID        string         `json:"runId"`
	StepID       string         `json:"stepId"`
	Attempt      int            `json:"attempt"`
	Status       StepStatus     `json:"status"`
	Output       map[string]any `json:"output,omitempty"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	StartedAt    time.Time      `json:"startedAt"`
	FinishedAt   time.Time      `json:"finishedAt"`
}

// Duration is how long the attempt took.
func (l StepRunLog) Duration() time.Duration {
	return l.FinishedAt.Sub(l.StartedAt)
}
