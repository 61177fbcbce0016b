package cmd

import (
	cli "github.com/urfave/cli/v3"
)

// Flags shared by every flowrunner binary.
func LogFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
		&cli.BoolFlag{
			Name:    "otel-enabled",
			Usage:   "Export traces over OTLP/HTTP (configured by the OTEL_EXPORTER_OTLP_* variables)",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
	}
}

func QueueFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "queue-url",
			Usage:    "Job queue URL (postgres://, redis://, memory://)",
			Required: true,
			Sources:  cli.EnvVars("QUEUE_URL", "DATABASE_URL"),
		},
	}
}

func EventBusFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringSliceFlag{
			Name:    "kafka-brokers",
			Usage:   "Kafka brokers, used when the event bus is kafka",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
	}
}

func PluginFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "plugins-path",
			Usage:   "Path to the directory containing connector plugins",
			Value:   "./plugins",
			Sources: cli.EnvVars("PLUGINS_PATH"),
		},
	}
}

// Merge concatenates flag groups.
func Merge(groups ...[]cli.Flag) []cli.Flag {
	var flags []cli.Flag
	for _, group := range groups {
		flags = append(flags, group...)
	}

	return flags
}
