package models

import (
	"math"
	"time"
)

const (
	DefaultStepTimeoutMs   = 10_000
	DefaultStepMaxAttempts = 1
	DefaultStepBackoffMs   = 0

	// MaxPolicyMs is the largest millisecond value a time.Duration holds.
	MaxPolicyMs = math.MaxInt64 / int64(time.Millisecond)
)

// WorkflowStep is one connector invocation inside a workflow.
type WorkflowStep struct {
	ID           string          `json:"id"                     validate:"required"`
	Connector    string          `json:"connector"              validate:"required"`
	Operation    string          `json:"operation"              validate:"required"`
	ConnectionID string          `json:"connectionId,omitempty"`
	Input        map[string]any  `json:"input"`
	Policy       *StepPolicySpec `json:"policy,omitempty"`
}

// StepPolicySpec is the retry policy as written in the DSL. Nil fields fall
// back to the defaults.
type StepPolicySpec struct {
	TimeoutMs   *int `json:"timeoutMs,omitempty"   validate:"omitempty,gt=0,lte=9223372036854"`
	MaxAttempts *int `json:"maxAttempts,omitempty" validate:"omitempty,gt=0"`
	BackoffMs   *int `json:"backoffMs,omitempty"   validate:"omitempty,gte=0,lte=9223372036854"`
}

// StepPolicy is the effective retry policy of a step.
type StepPolicy struct {
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
}

// ResolvedPolicy applies the defaults to the step's declared policy.
func (s WorkflowStep) ResolvedPolicy() StepPolicy {
	policy := StepPolicy{
		Timeout:     DefaultStepTimeoutMs * time.Millisecond,
		MaxAttempts: DefaultStepMaxAttempts,
		Backoff:     DefaultStepBackoffMs * time.Millisecond,
	}

	if s.Policy == nil {
		return policy
	}

	if s.Policy.TimeoutMs != nil {
		policy.Timeout = millisecondsToDuration(*s.Policy.TimeoutMs)
	}

	if s.Policy.MaxAttempts != nil {
		policy.MaxAttempts = *s.Policy.MaxAttempts
	}

	if s.Policy.BackoffMs != nil {
		policy.Backoff = millisecondsToDuration(*s.Policy.BackoffMs)
	}

	return policy
}

// millisecondsToDuration saturates instead of overflowing.
func millisecondsToDuration(ms int) time.Duration {
	if int64(ms) > MaxPolicyMs {
		return time.Duration(math.MaxInt64)
	}

	return time.Duration(ms) * time.Millisecond
}
