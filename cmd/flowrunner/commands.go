package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/asdev/flowrunner/pkg/dispatcher"
	"github.com/asdev/flowrunner/pkg/dsl"
	"github.com/asdev/flowrunner/pkg/models"
	"github.com/asdev/flowrunner/pkg/queue"
	"github.com/asdev/flowrunner/pkg/registry"
	"github.com/asdev/flowrunner/pkg/workflow"
	"github.com/google/uuid"
)

var errRunFailed = errors.New("run failed")

func readWorkflow(path string) (json.RawMessage, error) {
	if path == "" {
		return nil, errors.New("workflow file is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow: %w", err)
	}

	return raw, nil
}

func parseTrigger(raw string) (map[string]any, error) {
	trigger := map[string]any{}
	if raw == "" {
		return trigger, nil
	}

	err := json.Unmarshal([]byte(raw), &trigger)
	if err != nil {
		return nil, fmt.Errorf("trigger must be a JSON object: %w", err)
	}

	return trigger, nil
}

func writeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")

	return encoder.Encode(v)
}

// validateWorkflow prints the violations of an invalid workflow, or a short
// summary of a valid one.
func validateWorkflow(out io.Writer, path string) error {
	raw, err := readWorkflow(path)
	if err != nil {
		return err
	}

	wf, err := dsl.Parse(raw)
	if err != nil {
		var validationErr *dsl.ValidationError
		if errors.As(err, &validationErr) {
			for _, violation := range validationErr.Violations {
				_, _ = fmt.Fprintln(out, violation.String())
			}
		}

		return err
	}

	_, err = fmt.Fprintf(out, "%s: valid, trigger %s, %d step(s)\n", wf.Name, wf.Trigger.Type, len(wf.Steps))

	return err
}

type runOptions struct {
	workflowPath    string
	trigger         string
	connectionsPath string
}

type runReport struct {
	RunID    string              `json:"runId"`
	Workflow string              `json:"workflow"`
	Status   models.RunStatus    `json:"status"`
	Logs     []models.StepRunLog `json:"logs"`
}

// runWorkflow executes a workflow in process and prints the run log.
func runWorkflow(ctx context.Context, out io.Writer, logger *slog.Logger, reg *registry.Registry, opts runOptions) error {
	raw, err := readWorkflow(opts.workflowPath)
	if err != nil {
		return err
	}

	trigger, err := parseTrigger(opts.trigger)
	if err != nil {
		return err
	}

	if opts.connectionsPath != "" {
		connections, err := registry.LoadConnectionsFile(opts.connectionsPath)
		if err != nil {
			return err
		}

		reg.SetConnectionResolver(connections)
	}

	executor := workflow.NewExecutor(workflow.WithLogger(logger))

	result, err := executor.ExecuteWorkflow(ctx, workflow.ExecutionInput{
		RunID:      uuid.NewString(),
		Trigger:    trigger,
		DSL:        raw,
		Connectors: reg,
	})
	if result != nil {
		writeErr := writeJSON(out, runReport{
			RunID:    result.RunID,
			Workflow: result.Workflow,
			Status:   result.Status,
			Logs:     result.Logs,
		})
		if writeErr != nil {
			return writeErr
		}
	}

	if err != nil {
		return err
	}

	if result.Status != models.RunStatusSucceeded {
		return errRunFailed
	}

	return nil
}

type enqueueOptions struct {
	workflowPath string
	trigger      string
	maxAttempts  int
}

func enqueueWorkflow(ctx context.Context, out io.Writer, logger *slog.Logger, q queue.Queue, opts enqueueOptions) error {
	raw, err := readWorkflow(opts.workflowPath)
	if err != nil {
		return err
	}

	trigger, err := parseTrigger(opts.trigger)
	if err != nil {
		return err
	}

	job, err := dispatcher.New(q, logger).Dispatch(ctx, dispatcher.Request{
		Workflow:    raw,
		Trigger:     trigger,
		MaxAttempts: opts.maxAttempts,
	})
	if err != nil {
		return err
	}

	return writeJSON(out, map[string]any{
		"run_id":       job.RunID,
		"job_id":       job.ID,
		"available_at": job.AvailableAt,
	})
}
