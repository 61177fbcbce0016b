package workflow

import (
	"errors"
	"fmt"
	"time"
)

var ErrNoConnectorRuntime = errors.New("workflow: connector runtime is required")

// StepTimeoutError is recorded when a connector call does not settle within
// the step's timeout. It is retried like any other failure.
type StepTimeoutError struct {
	StepID  string
	Timeout time.Duration
}

func (e *StepTimeoutError) Error() string {
	return fmt.Sprintf("step timeout after %dms", e.Timeout.Milliseconds())
}

// ConnectorError wraps a failure returned by the connector runtime. Its
// message is the runtime's message, unchanged.
type ConnectorError struct {
	Connector string
	Operation string
	Err       error
}

func (e *ConnectorError) Error() string {
	return e.Err.Error()
}

func (e *ConnectorError) Unwrap() error {
	return e.Err
}
