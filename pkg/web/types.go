package web

import (
	"encoding/json"
	"time"
)

// CreateRunRequest is the body of POST /runs.
type CreateRunRequest struct {
	Workflow    json.RawMessage `json:"workflow"               validate:"required"`
	Trigger     map[string]any  `json:"trigger"`
	MaxAttempts int             `json:"max_attempts,omitempty" validate:"omitempty,gt=0,lte=100"`
	AvailableAt *time.Time      `json:"available_at,omitempty"`
}

type CreateRunResponse struct {
	RunID       string    `json:"run_id"`
	JobID       string    `json:"job_id"`
	AvailableAt time.Time `json:"available_at"`
}

// ValidateWorkflowRequest is the body of POST /workflows/validate.
type ValidateWorkflowRequest struct {
	Workflow json.RawMessage `json:"workflow" validate:"required"`
}

type ValidateWorkflowResponse struct {
	Valid   bool     `json:"valid"`
	Name    string   `json:"name"`
	Trigger string   `json:"trigger"`
	Steps   []string `json:"steps"`
}
