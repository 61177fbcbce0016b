package cmd

import (
	"context"
	"log/slog"

	"github.com/asdev/flowrunner/pkg/otelhelper"
)

// SetupTracing installs the OTLP tracer provider when enabled. The returned
// function flushes and stops it.
func SetupTracing(ctx context.Context, logger *slog.Logger, enabled bool, serviceName string) func() {
	if !enabled {
		return func() {}
	}

	_, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to set up tracing, continuing without it", "error", err)

		return func() {}
	}

	logger.InfoContext(ctx, "Tracing enabled", "service", serviceName)

	return func() {
		err := shutdown(context.WithoutCancel(ctx))
		if err != nil {
			logger.ErrorContext(ctx, "Failed to shut down tracer", "error", err)
		}
	}
}
