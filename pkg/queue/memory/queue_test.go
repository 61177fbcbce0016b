package memory_test

import (
	"context"
	"testing"

	"github.com/asdev/flowrunner/pkg/queue"
	"github.com/asdev/flowrunner/pkg/queue/memory"
	"github.com/asdev/flowrunner/pkg/queue/queuetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_Contract(t *testing.T) {
	t.Parallel()

	queuetest.RunContract(t, func(*testing.T) queue.Queue {
		return memory.NewQueue()
	})
}

func TestQueue_TiesBrokenByID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := memory.NewQueue()

	require.NoError(t, q.Enqueue(ctx, queuetest.Job("b", queuetest.BaseTime)))
	require.NoError(t, q.Enqueue(ctx, queuetest.Job("a", queuetest.BaseTime)))

	job, err := q.ClaimNext(ctx, queuetest.BaseTime)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "a", job.ID)
	assert.Equal(t, 2, q.Len())
}

func TestQueue_EnqueueCopiesPayload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := memory.NewQueue()

	job := queuetest.Job("p", queuetest.BaseTime)
	job.Payload = []byte(`{"a":1}`)
	require.NoError(t, q.Enqueue(ctx, job))

	job.Payload[5] = '2'

	claimed, err := q.ClaimNext(ctx, queuetest.BaseTime)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(claimed.Payload))
}
