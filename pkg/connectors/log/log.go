// Package log provides the core.log connector, which writes its input to the
// process log and echoes it back as the step output.
package log

import (
	"context"
	"log/slog"
	"maps"

	"github.com/asdev/flowrunner/pkg/connectors"
	"github.com/asdev/flowrunner/pkg/protocol"
)

const (
	ConnectorID    = "core.log"
	OperationWrite = "write"
)

type ConnectorFactory struct {
	logger *slog.Logger
}

func NewConnectorFactory(logger *slog.Logger) *ConnectorFactory {
	return &ConnectorFactory{logger: logger}
}

func (*ConnectorFactory) ID() string {
	return ConnectorID
}

// Create accepts an optional "level" (debug, info, warn, error); info by default.
func (f *ConnectorFactory) Create(config map[string]any) (protocol.Connector, error) {
	level := slog.LevelInfo

	if raw, ok := config["level"].(string); ok && raw != "" {
		if err := level.UnmarshalText([]byte(raw)); err != nil {
			return nil, err
		}
	}

	return &Connector{
		Level:  level,
		logger: f.logger.With("connector", ConnectorID),
	}, nil
}

type Connector struct {
	Level  slog.Level
	logger *slog.Logger
}

func (c *Connector) Run(ctx context.Context, invocation protocol.Invocation, input map[string]any) (map[string]any, error) {
	if invocation.Operation != OperationWrite {
		return nil, connectors.UnsupportedOperation(ConnectorID, invocation.Operation)
	}

	message, _ := input["message"].(string)
	if message == "" {
		message = "workflow log"
	}

	attrs := make([]any, 0, 2*len(input)+2)
	attrs = append(attrs, "idempotency_key", invocation.IdempotencyKey)

	for key, value := range input {
		if key == "message" {
			continue
		}

		attrs = append(attrs, key, value)
	}

	c.logger.Log(ctx, c.Level, message, attrs...)

	return maps.Clone(input), nil
}
