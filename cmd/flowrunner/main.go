package main

import (
	"context"
	"fmt"
	"os"

	"github.com/asdev/flowrunner/pkg/cmd"
	"github.com/asdev/flowrunner/pkg/dispatcher"
	"github.com/asdev/flowrunner/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "flowrunner",
		Usage:                 "Validate, run and enqueue declarative workflows",
		EnableShellCompletion: true,
		Flags:                 cmd.LogFlags(),
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup(command.String("log-level"), command.String("log-format"))

			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:      "validate",
				Aliases:   []string{"v"},
				Usage:     "Check a workflow definition",
				ArgsUsage: "<workflow.json>",
				Action: func(_ context.Context, command *cli.Command) error {
					return validateWorkflow(os.Stdout, command.Args().First())
				},
			},
			{
				Name:      "run",
				Aliases:   []string{"r"},
				Usage:     "Execute a workflow in this process and print its run log",
				ArgsUsage: "<workflow.json>",
				Flags: cmd.Merge(
					[]cli.Flag{
						&cli.StringFlag{
							Name:    "trigger",
							Aliases: []string{"t"},
							Usage:   "Trigger data as a JSON object",
						},
						&cli.StringFlag{
							Name:    "connections",
							Usage:   "JSON file mapping connection ids to connector config",
							Sources: cli.EnvVars("CONNECTIONS_FILE"),
						},
					},
					cmd.PluginFlags(),
				),
				Action: func(ctx context.Context, command *cli.Command) error {
					logger := log.WithModule("flowrunner")

					shutdownTracing := cmd.SetupTracing(ctx, logger, command.Bool("otel-enabled"), "flowrunner")
					defer shutdownTracing()

					return runWorkflow(ctx, os.Stdout, logger, cmd.NewRegistry(logger, command.String("plugins-path")), runOptions{
						workflowPath:    command.Args().First(),
						trigger:         command.String("trigger"),
						connectionsPath: command.String("connections"),
					})
				},
			},
			{
				Name:      "enqueue",
				Aliases:   []string{"e"},
				Usage:     "Queue a run of a workflow for the workers",
				ArgsUsage: "<workflow.json>",
				Flags: cmd.Merge(
					[]cli.Flag{
						&cli.StringFlag{
							Name:    "trigger",
							Aliases: []string{"t"},
							Usage:   "Trigger data as a JSON object",
						},
						&cli.IntFlag{
							Name:  "max-attempts",
							Usage: "Job attempts before the run is dead lettered",
							Value: dispatcher.DefaultMaxAttempts,
						},
					},
					cmd.QueueFlags(),
				),
				Action: func(ctx context.Context, command *cli.Command) error {
					logger := log.WithModule("flowrunner")

					queue := cmd.NewQueue(ctx, logger, command.String("queue-url"))
					defer func() {
						err := queue.Close()
						if err != nil {
							logger.ErrorContext(ctx, "Failed to close queue", "error", err)
						}
					}()

					return enqueueWorkflow(ctx, os.Stdout, logger, queue, enqueueOptions{
						workflowPath: command.Args().First(),
						trigger:      command.String("trigger"),
						maxAttempts:  command.Int("max-attempts"),
					})
				},
			},
			{
				Name:  "connectors",
				Usage: "List the available connectors",
				Flags: cmd.PluginFlags(),
				Action: func(_ context.Context, command *cli.Command) error {
					reg := cmd.NewRegistry(log.WithModule("flowrunner"), command.String("plugins-path"))

					for _, id := range reg.Connectors() {
						fmt.Println(id)
					}

					return nil
				},
			},
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
