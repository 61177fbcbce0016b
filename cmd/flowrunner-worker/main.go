package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asdev/flowrunner/pkg/cmd"
	"github.com/asdev/flowrunner/pkg/log"
	"github.com/asdev/flowrunner/pkg/worker"
	"github.com/asdev/flowrunner/pkg/workflow"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "flowrunner-worker",
		EnableShellCompletion: true,
		Usage:                 "Claim queued runs and execute their workflows",
		Flags: cmd.Merge(
			[]cli.Flag{
				&cli.StringFlag{
					Name:    "worker-id",
					Aliases: []string{"id"},
					Usage:   "Custom worker ID (auto-generated if not provided)",
					Sources: cli.EnvVars("WORKER_ID"),
				},
				&cli.IntFlag{
					Name:    "concurrency",
					Aliases: []string{"c"},
					Usage:   "Number of runs executed in parallel",
					Value:   worker.DefaultConcurrency,
					Sources: cli.EnvVars("WORKER_CONCURRENCY"),
				},
				&cli.DurationFlag{
					Name:    "poll-interval",
					Usage:   "How long an idle worker waits before claiming again",
					Value:   worker.DefaultPollInterval,
					Sources: cli.EnvVars("POLL_INTERVAL"),
				},
				&cli.DurationFlag{
					Name:    "stale-after",
					Usage:   "Claims older than this are released for other workers; must exceed the longest run",
					Value:   worker.DefaultStaleAfter,
					Sources: cli.EnvVars("STALE_AFTER"),
				},
				&cli.DurationFlag{
					Name:    "reaper-interval",
					Usage:   "How often stale claims are released, 0 to disable",
					Value:   worker.DefaultReaperInterval,
					Sources: cli.EnvVars("REAPER_INTERVAL"),
				},
				&cli.BoolFlag{
					Name:    "retry-failed-runs",
					Usage:   "Reschedule runs that end FAILED until the job's attempts are used up",
					Sources: cli.EnvVars("RETRY_FAILED_RUNS"),
				},
			},
			cmd.QueueFlags(),
			cmd.EventBusFlags(),
			cmd.PluginFlags(),
			cmd.LogFlags(),
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.NewString()[:8]
			}

			logger := log.WithModule("flowrunner-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing flowrunner worker")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdownTracing := cmd.SetupTracing(ctx, logger, command.Bool("otel-enabled"), "flowrunner-worker")
			defer shutdownTracing()

			registry := cmd.NewRegistry(logger, command.String("plugins-path"))

			eventBus := cmd.NewEventBus(command.String("event-bus"), command.StringSlice("kafka-brokers"), logger)
			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			queue := cmd.NewQueue(ctx, logger, command.String("queue-url"))
			defer func() {
				err := queue.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close queue", "error", err)
				}
			}()

			w := worker.New(
				queue,
				workflow.NewExecutor(workflow.WithLogger(logger)),
				registry,
				worker.NewEventReporter(eventBus, workerID),
				worker.WithID(workerID),
				worker.WithLogger(logger),
				worker.WithConcurrency(command.Int("concurrency")),
				worker.WithPollInterval(command.Duration("poll-interval")),
				worker.WithStaleClaims(command.Duration("reaper-interval"), command.Duration("stale-after")),
				worker.WithRetryBackoff(worker.DefaultRetryInitial, worker.DefaultRetryMax, worker.DefaultRetryJitter),
				worker.WithRetryFailedRuns(command.Bool("retry-failed-runs")),
			)

			started := time.Now()

			err := w.Run(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Worker stopped with error", "error", err)

				return err
			}

			logger.InfoContext(ctx, "Worker shut down", "uptime", time.Since(started))

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
