package main

import (
	"context"
	"os"

	"github.com/asdev/flowrunner/pkg/cmd"
	"github.com/asdev/flowrunner/pkg/dispatcher"
	"github.com/asdev/flowrunner/pkg/log"
	"github.com/asdev/flowrunner/pkg/web"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "flowrunner-api",
		Usage:                 "Accept workflow runs over HTTP and enqueue them",
		EnableShellCompletion: true,
		Flags: cmd.Merge(
			[]cli.Flag{
				&cli.IntFlag{
					Name:    "port",
					Aliases: []string{"p"},
					Usage:   "Port to run the API server on",
					Value:   defaultPort,
					Sources: cli.EnvVars("PORT"),
				},
			},
			cmd.QueueFlags(),
			cmd.EventBusFlags(),
			cmd.LogFlags(),
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("api")

			logger.InfoContext(ctx, "Initializing flowrunner API")

			shutdownTracing := cmd.SetupTracing(ctx, logger, command.Bool("otel-enabled"), "flowrunner-api")
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

			api := NewAPI(
				logger,
				dispatcher.New(queue, logger, dispatcher.WithEventPublisher(eventBus)),
				map[string]web.HealthCheck{"queue": queue.HealthCheck},
			)

			err := api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)

				return err
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
