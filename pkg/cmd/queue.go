package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/asdev/flowrunner/pkg/queue"
	"github.com/asdev/flowrunner/pkg/queue/memory"
	"github.com/asdev/flowrunner/pkg/queue/postgresql"
	"github.com/asdev/flowrunner/pkg/queue/redis"
)

// Queue is a job queue whose backing store can be probed.
type Queue interface {
	queue.Queue
	HealthCheck(ctx context.Context) error
}

type memoryQueue struct {
	*memory.Queue
}

func (memoryQueue) HealthCheck(context.Context) error {
	return nil
}

// NewQueue opens the queue backend named by the URL scheme: postgres://,
// redis:// (or rediss://) and memory://.
func NewQueue(ctx context.Context, logger *slog.Logger, queueURL string) Queue {
	switch parseQueueProvider(queueURL) {
	case "postgresql":
		q, err := postgresql.NewQueue(ctx, logger, queueURL)
		if err != nil {
			panic(fmt.Errorf("failed to open postgres queue: %w", err))
		}

		return q
	case "redis":
		q, err := redis.NewQueueFromURL(ctx, logger, queueURL)
		if err != nil {
			panic(fmt.Errorf("failed to open redis queue: %w", err))
		}

		return q
	case "memory":
		logger.WarnContext(ctx, "Using in-memory queue, jobs are lost on exit")

		return memoryQueue{Queue: memory.NewQueue()}
	default:
		panic("Unsupported queue url: " + queueURL)
	}
}

func parseQueueProvider(queueURL string) string {
	scheme, _, found := strings.Cut(queueURL, "://")
	if !found {
		return ""
	}

	switch scheme {
	case "postgres", "postgresql":
		return "postgresql"
	case "redis", "rediss":
		return "redis"
	case "memory":
		return "memory"
	default:
		return ""
	}
}
