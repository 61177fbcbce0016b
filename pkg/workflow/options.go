package workflow

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

type Option func(*Executor)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithEnv sets the values {{env.*}} tokens resolve against. Defaults to the
// process environment captured when the executor is built.
func WithEnv(env map[string]string) Option {
	return func(e *Executor) {
		e.env = env
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Executor) {
		e.tracer = tracer
	}
}
