// Package protocol defines the contracts between the engine and connectors.
package protocol

import "context"

// ActionRequest is one connector invocation built by the engine for a step attempt.
type ActionRequest struct {
	Connector      string         `json:"connector"`
	Operation      string         `json:"operation"`
	ConnectionID   string         `json:"connectionId,omitempty"`
	Input          map[string]any `json:"input"`
	IdempotencyKey string         `json:"idempotencyKey"`
}

// ActionResult is what a successful invocation returns.
type ActionResult struct {
	Output map[string]any `json:"output"`
}

// ConnectorRuntime runs connector actions on behalf of the engine. The
// context carries the step deadline; implementations should honour it, but
// the engine stops waiting at the deadline either way. IdempotencyKey is the
// same across retries of one step so implementations can dedupe.
type ConnectorRuntime interface {
	RunAction(ctx context.Context, request ActionRequest) (ActionResult, error)
}

// ConnectorRuntimeFunc adapts a function to ConnectorRuntime.
type ConnectorRuntimeFunc func(ctx context.Context, request ActionRequest) (ActionResult, error)

func (f ConnectorRuntimeFunc) RunAction(ctx context.Context, request ActionRequest) (ActionResult, error) {
	return f(ctx, request)
}

// Invocation is the per-call metadata handed to a connector.
type Invocation struct {
	Operation      string
	IdempotencyKey string
	ConnectionID   string
}

// Connector executes the operations of one external integration.
type Connector interface {
	Run(ctx context.Context, invocation Invocation, input map[string]any) (map[string]any, error)
}

// ConnectorFactory creates connectors configured for a connection.
type ConnectorFactory interface {
	Create(config map[string]any) (Connector, error)
	ID() string
}

// ConnectionResolver returns the configuration of a stored connection. Secret
// storage and decryption are owned by the implementation.
type ConnectionResolver interface {
	ResolveConnection(ctx context.Context, connectionID string) (map[string]any, error)
}
