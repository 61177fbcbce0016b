package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/asdev/flowrunner/pkg/cmd"
	"github.com/asdev/flowrunner/pkg/dispatcher"
	"github.com/asdev/flowrunner/pkg/log"
	"github.com/asdev/flowrunner/pkg/scheduler"
	cli "github.com/urfave/cli/v3"
)

var errNothingScheduled = errors.New("no workflow with a core.schedule trigger found")

func main() {
	command := &cli.Command{
		Name:                  "flowrunner-scheduler",
		Usage:                 "Enqueue runs of scheduled workflows on their cron expression",
		EnableShellCompletion: true,
		Flags: cmd.Merge(
			[]cli.Flag{
				&cli.StringFlag{
					Name:     "workflows-dir",
					Usage:    "Directory of workflow definitions (*.json)",
					Required: true,
					Sources:  cli.EnvVars("WORKFLOWS_DIR"),
				},
				&cli.IntFlag{
					Name:    "max-attempts",
					Usage:   "Job attempts for every scheduled run",
					Value:   dispatcher.DefaultMaxAttempts,
					Sources: cli.EnvVars("MAX_ATTEMPTS"),
				},
			},
			cmd.QueueFlags(),
			cmd.EventBusFlags(),
			cmd.LogFlags(),
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("flowrunner-scheduler")

			logger.InfoContext(ctx, "Initializing flowrunner scheduler")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
			defer stop()

			shutdownTracing := cmd.SetupTracing(ctx, logger, command.Bool("otel-enabled"), "flowrunner-scheduler")
			defer shutdownTracing()

			queue := cmd.NewQueue(ctx, logger, command.String("queue-url"))
			defer func() {
				err := queue.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close queue", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), command.StringSlice("kafka-brokers"), logger)
			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			s := scheduler.New(
				dispatcher.New(queue, logger,
					dispatcher.WithEventPublisher(eventBus),
					dispatcher.WithMaxAttempts(command.Int("max-attempts"))),
				logger,
			)

			count, err := s.LoadDir(command.String("workflows-dir"))
			if err != nil {
				return err
			}

			if count == 0 {
				return errNothingScheduled
			}

			return s.Run(ctx)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
