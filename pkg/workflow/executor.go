// Package workflow runs validated workflows step by step against a connector
// runtime, applying each step's retry, timeout and backoff policy.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/asdev/flowrunner/pkg/dsl"
	"github.com/asdev/flowrunner/pkg/models"
	"github.com/asdev/flowrunner/pkg/otelhelper"
	"github.com/asdev/flowrunner/pkg/protocol"
	"github.com/asdev/flowrunner/pkg/template"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/asdev/flowrunner/pkg/workflow"

// ExecutionInput is everything a single run needs.
type ExecutionInput struct {
	RunID      string
	Trigger    map[string]any
	DSL        json.RawMessage
	Connectors protocol.ConnectorRuntime
}

// ExecutionResult is the structured outcome of a run. Status is the single
// source of truth for success; Logs holds one entry per attempt in order.
type ExecutionResult struct {
	RunID      string
	Workflow   string
	Status     models.RunStatus
	Logs       []models.StepRunLog
	Outputs    models.StepOutputs
	StartedAt  time.Time
	FinishedAt time.Time
}

type Executor struct {
	logger *slog.Logger
	env    map[string]string
	tracer trace.Tracer
}

func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		logger: slog.Default(),
		env:    template.EnvFromOS(),
		tracer: otelhelper.Tracer(tracerName),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.logger = e.logger.With("module", "workflow_executor")

	return e
}

// ExecuteWorkflow validates the DSL and runs it.
//
// An invalid DSL returns a nil result and a *dsl.ValidationError without
// calling any connector. Step failures never surface as errors: they are
// captured in the logs and end the run as FAILED. The only other error is
// the caller's context being done mid-run, in which case the FAILED result
// is returned together with the context error.
func (e *Executor) ExecuteWorkflow(ctx context.Context, input ExecutionInput) (*ExecutionResult, error) {
	workflow, err := dsl.Parse(input.DSL)
	if err != nil {
		return nil, err
	}

	if input.Connectors == nil {
		return nil, ErrNoConnectorRuntime
	}

	return e.run(ctx, input.RunID, workflow, input.Trigger, input.Connectors)
}

func (e *Executor) run(
	ctx context.Context,
	runID string,
	workflow *models.WorkflowDsl,
	trigger map[string]any,
	connectors protocol.ConnectorRuntime,
) (*ExecutionResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.run",
		attribute.String(otelhelper.RunIDKey, runID),
		attribute.String(otelhelper.WorkflowNameKey, workflow.Name),
		attribute.String(otelhelper.TriggerTypeKey, workflow.Trigger.Type),
	)
	defer span.End()

	logger := e.logger.With("run_id", runID, "workflow", workflow.Name)
	logger.InfoContext(ctx, "Starting workflow run", "steps", len(workflow.Steps))

	result := &ExecutionResult{
		RunID:     runID,
		Workflow:  workflow.Name,
		Status:    models.RunStatusSucceeded,
		Logs:      make([]models.StepRunLog, 0, len(workflow.Steps)),
		Outputs:   models.StepOutputs{},
		StartedAt: time.Now(),
	}

	finish := func(status models.RunStatus) {
		result.Status = status
		result.FinishedAt = time.Now()
	}

	for _, step := range workflow.Steps {
		completed, err := e.runStep(ctx, logger, runID, step, trigger, connectors, result)
		if err != nil {
			finish(models.RunStatusFailed)
			otelhelper.SetError(span, err)
			logger.WarnContext(ctx, "Workflow run interrupted", "step_id", step.ID, "error", err)

			return result, err
		}

		if !completed {
			finish(models.RunStatusFailed)
			otelhelper.SetError(span, errors.New("step attempts exhausted"), attribute.String(otelhelper.StepIDKey, step.ID))
			logger.InfoContext(ctx, "Workflow run failed", "step_id", step.ID)

			return result, nil
		}
	}

	finish(models.RunStatusSucceeded)
	logger.InfoContext(ctx, "Workflow run succeeded", "duration", result.FinishedAt.Sub(result.StartedAt))

	return result, nil
}

// runStep executes every attempt of a step. It reports whether the step
// succeeded; a non-nil error means the caller's context ended the run.
func (e *Executor) runStep(
	ctx context.Context,
	logger *slog.Logger,
	runID string,
	step models.WorkflowStep,
	trigger map[string]any,
	connectors protocol.ConnectorRuntime,
	result *ExecutionResult,
) (bool, error) {
	policy := step.ResolvedPolicy()
	logger = logger.With("step_id", step.ID, "connector", step.Connector, "operation", step.Operation)

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		tctx := template.Context{Trigger: trigger, Steps: result.Outputs, Env: e.env}

		request := protocol.ActionRequest{
			Connector:      step.Connector,
			Operation:      step.Operation,
			ConnectionID:   step.ConnectionID,
			Input:          template.InterpolateMap(step.Input, tctx),
			IdempotencyKey: runID + ":" + step.ID,
		}

		entry := models.StepRunLog{RunID: runID, StepID: step.ID, Attempt: attempt, StartedAt: time.Now()}

		output, err := e.attempt(ctx, step, attempt, policy.Timeout, request, connectors)
		entry.FinishedAt = time.Now()

		if err == nil {
			if output == nil {
				output = map[string]any{}
			}

			entry.Status = models.StepStatusSucceeded
			entry.Output = output
			result.Logs = append(result.Logs, entry)
			result.Outputs.Record(step.ID, output)

			logger.DebugContext(ctx, "Step succeeded", "attempt", attempt, "duration", entry.Duration())

			return true, nil
		}

		entry.Status = models.StepStatusFailed
		entry.ErrorMessage = err.Error()
		result.Logs = append(result.Logs, entry)

		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}

		logger.WarnContext(ctx, "Step attempt failed",
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"error", err)

		if attempt >= policy.MaxAttempts {
			return false, nil
		}

		if policy.Backoff > 0 {
			if err := sleep(ctx, policy.Backoff); err != nil {
				return false, err
			}
		}
	}

	return false, nil
}

type actionOutcome struct {
	result protocol.ActionResult
	err    error
}

// attempt races one connector call against the step timeout. The call gets
// a context carrying the deadline; a connector that ignores it keeps running
// in the background and its late result is dropped.
func (e *Executor) attempt(
	ctx context.Context,
	step models.WorkflowStep,
	attempt int,
	timeout time.Duration,
	request protocol.ActionRequest,
	connectors protocol.ConnectorRuntime,
) (map[string]any, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.step",
		attribute.String(otelhelper.StepIDKey, step.ID),
		attribute.Int(otelhelper.StepAttemptKey, attempt),
		attribute.String(otelhelper.ConnectorKey, step.Connector),
		attribute.String(otelhelper.OperationKey, step.Operation),
	)
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan actionOutcome, 1)

	go func() {
		res, err := connectors.RunAction(callCtx, request)
		done <- actionOutcome{result: res, err: err}
	}()

	var err error

	select {
	case outcome := <-done:
		if outcome.err == nil {
			return outcome.result.Output, nil
		}

		err = &ConnectorError{Connector: step.Connector, Operation: step.Operation, Err: outcome.err}

		// A connector honouring the deadline fails with the context error;
		// report it as the timeout it is.
		if callCtx.Err() != nil {
			err = deadlineError(ctx, step.ID, timeout)
		}
	case <-callCtx.Done():
		err = deadlineError(ctx, step.ID, timeout)
	}

	otelhelper.SetError(span, err)

	return nil, err
}

func deadlineError(ctx context.Context, stepID string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return &StepTimeoutError{StepID: stepID, Timeout: timeout}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
