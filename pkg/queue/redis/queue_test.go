package redis_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/asdev/flowrunner/pkg/queue"
	"github.com/asdev/flowrunner/pkg/queue/queuetest"
	redisqueue "github.com/asdev/flowrunner/pkg/queue/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*redisqueue.Queue, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
	})

	return redisqueue.NewQueue(client, redisqueue.WithLogger(slog.Default())), server
}

func TestQueue_Contract(t *testing.T) {
	t.Parallel()

	queuetest.RunContract(t, func(t *testing.T) queue.Queue {
		q, _ := newTestQueue(t)

		return q
	})
}

func TestQueue_KeyLayout(t *testing.T) {
	t.Parallel()

	q, server := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, queuetest.Job("j1", queuetest.BaseTime)))

	assert.True(t, server.Exists("{flowrunner}:queue:job:j1"))
	assert.Equal(t, "run-j1", server.HGet("{flowrunner}:queue:job:j1", "run_id"))

	score, err := server.ZScore("{flowrunner}:queue:ready", "j1")
	require.NoError(t, err)
	assert.InDelta(t, float64(queuetest.BaseTime.UnixMicro()), score, 0)

	_, err = q.ClaimNext(ctx, queuetest.BaseTime)
	require.NoError(t, err)

	members, err := server.ZMembers("{flowrunner}:queue:claimed")
	require.NoError(t, err)
	assert.Equal(t, []string{"j1"}, members)
	assert.False(t, server.Exists("{flowrunner}:queue:ready"))
}

func TestQueue_SubMicrosecondDueTimeRoundsUp(t *testing.T) {
	t.Parallel()

	q, _ := newTestQueue(t)
	ctx := context.Background()
	due := queuetest.BaseTime.Add(500 * time.Nanosecond)

	require.NoError(t, q.Enqueue(ctx, queuetest.Job("j1", due)))

	early, err := q.ClaimNext(ctx, queuetest.BaseTime.Add(999*time.Nanosecond))
	require.NoError(t, err)
	assert.Nil(t, early)

	claimed, err := q.ClaimNext(ctx, queuetest.BaseTime.Add(time.Microsecond))
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.True(t, due.Equal(claimed.AvailableAt))
}

func TestQueue_CustomPrefix(t *testing.T) {
	t.Parallel()

	server := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: server.Addr()})
	defer client.Close()

	q := redisqueue.NewQueue(client, redisqueue.WithKeyPrefix("{tenant-a}:jobs"))

	require.NoError(t, q.Enqueue(context.Background(), queuetest.Job("j1", queuetest.BaseTime)))
	assert.True(t, server.Exists("{tenant-a}:jobs:job:j1"))
	assert.NoError(t, q.Close())
}

func TestNewQueueFromURL(t *testing.T) {
	t.Parallel()

	server := miniredis.RunT(t)

	q, err := redisqueue.NewQueueFromURL(context.Background(), slog.Default(), "redis://"+server.Addr())
	require.NoError(t, err)
	require.NoError(t, q.Close())

	_, err = redisqueue.NewQueueFromURL(context.Background(), slog.Default(), "not a url")
	assert.Error(t, err)
}

func TestQueue_HealthCheck(t *testing.T) {
	t.Parallel()

	q, server := newTestQueue(t)

	require.NoError(t, q.HealthCheck(context.Background()))

	server.Close()

	require.Error(t, q.HealthCheck(context.Background()))
}
