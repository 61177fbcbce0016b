// Package queuetest holds the behaviour every queue backend must share, as
// a suite the backend packages run against their own constructors.
package queuetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/asdev/flowrunner/pkg/models"
	"github.com/asdev/flowrunner/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty queue. Cleanup is the factory's business.
type Factory func(t *testing.T) queue.Queue

// BaseTime is whole-second; offsets in the suite stay on microseconds, the
// coarsest precision a backend keeps.
var BaseTime = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

func Job(id string, availableAt time.Time) models.QueueJob {
	return models.QueueJob{
		ID:          id,
		RunID:       "run-" + id,
		Payload:     []byte(`{"workflow":{"name":"flow"},"trigger":{"phone":"+989121234567"}}`),
		AvailableAt: availableAt,
		MaxAttempts: 3,
	}
}

// RunContract runs the shared queue suite.
func RunContract(t *testing.T, factory Factory) {
	t.Helper()

	t.Run("claims earliest eligible job", func(t *testing.T) { testClaimOrdering(t, factory(t)) })
	t.Run("rejects duplicate ids", func(t *testing.T) { testDuplicate(t, factory(t)) })
	t.Run("round trips job fields", func(t *testing.T) { testRoundTrip(t, factory(t)) })
	t.Run("honours sub-millisecond availability", func(t *testing.T) { testSubMillisecondAvailability(t, factory(t)) })
	t.Run("stores empty payload as object", func(t *testing.T) { testEmptyPayload(t, factory(t)) })
	t.Run("ack and fail report existence", func(t *testing.T) { testUnknownIDs(t, factory(t)) })
	t.Run("ack removes job", func(t *testing.T) { testAck(t, factory(t)) })
	t.Run("releases stale claims", func(t *testing.T) { testReleaseStale(t, factory(t)) })
	t.Run("concurrent claimers never share a job", func(t *testing.T) { testConcurrentClaims(t, factory(t)) })
}

func testClaimOrdering(t *testing.T, q queue.Queue) {
	ctx := context.Background()
	now := BaseTime

	require.NoError(t, q.Enqueue(ctx, Job("j1", now.Add(time.Second))))
	require.NoError(t, q.Enqueue(ctx, Job("j2", now.Add(-time.Second))))

	claimed, err := q.ClaimNext(ctx, now)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, "j2", claimed.ID)

	again, err := q.ClaimNext(ctx, now)
	require.NoError(t, err)
	assert.Nil(t, again)

	existed, err := q.Fail(ctx, "j2", now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.True(t, existed)

	none, err := q.ClaimNext(ctx, now)
	require.NoError(t, err)
	assert.Nil(t, none)

	later := now.Add(10 * time.Minute)

	first, err := q.ClaimNext(ctx, later)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "j1", first.ID)

	second, err := q.ClaimNext(ctx, later)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "j2", second.ID)
	assert.Equal(t, 1, second.Attempts)
	assert.WithinDuration(t, later, second.AvailableAt, time.Millisecond)
}

func testDuplicate(t *testing.T, q queue.Queue) {
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Job("dup", BaseTime)))

	err := q.Enqueue(ctx, Job("dup", BaseTime))
	assert.ErrorIs(t, err, queue.ErrJobAlreadyExists)
}

func testRoundTrip(t *testing.T, q queue.Queue) {
	ctx := context.Background()

	job := Job("rt", BaseTime)
	job.StepID = "s1"
	job.Attempts = 1
	job.MaxAttempts = 5

	require.NoError(t, q.Enqueue(ctx, job))

	claimed, err := q.ClaimNext(ctx, BaseTime)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	assert.Equal(t, job.ID, claimed.ID)
	assert.Equal(t, job.RunID, claimed.RunID)
	assert.Equal(t, job.StepID, claimed.StepID)
	assert.Equal(t, job.Attempts, claimed.Attempts)
	assert.Equal(t, job.MaxAttempts, claimed.MaxAttempts)
	assert.JSONEq(t, string(job.Payload), string(claimed.Payload))
	assert.WithinDuration(t, job.AvailableAt, claimed.AvailableAt, time.Millisecond)
}

func testSubMillisecondAvailability(t *testing.T, q queue.Queue) {
	ctx := context.Background()
	now := BaseTime.Add(100 * time.Microsecond)
	due := now.Add(500 * time.Microsecond)

	require.NoError(t, q.Enqueue(ctx, Job("sub-ms", due)))

	early, err := q.ClaimNext(ctx, now)
	require.NoError(t, err)
	assert.Nil(t, early)

	almost, err := q.ClaimNext(ctx, due.Add(-time.Microsecond))
	require.NoError(t, err)
	assert.Nil(t, almost)

	claimed, err := q.ClaimNext(ctx, due)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, "sub-ms", claimed.ID)
	assert.True(t, due.Equal(claimed.AvailableAt), "available at %s, want %s", claimed.AvailableAt, due)
}

func testEmptyPayload(t *testing.T, q queue.Queue) {
	ctx := context.Background()

	job := Job("empty", BaseTime)
	job.Payload = nil

	require.NoError(t, q.Enqueue(ctx, job))

	claimed, err := q.ClaimNext(ctx, BaseTime)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.JSONEq(t, `{}`, string(claimed.Payload))
}

func testUnknownIDs(t *testing.T, q queue.Queue) {
	ctx := context.Background()

	acked, err := q.Ack(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, acked)

	failed, err := q.Fail(ctx, "missing", BaseTime)
	require.NoError(t, err)
	assert.False(t, failed)
}

func testAck(t *testing.T, q queue.Queue) {
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Job("ack", BaseTime)))

	claimed, err := q.ClaimNext(ctx, BaseTime)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	acked, err := q.Ack(ctx, "ack")
	require.NoError(t, err)
	assert.True(t, acked)

	acked, err = q.Ack(ctx, "ack")
	require.NoError(t, err)
	assert.False(t, acked)

	next, err := q.ClaimNext(ctx, BaseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.Nil(t, next)
}

func testReleaseStale(t *testing.T, q queue.Queue) {
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Job("old", BaseTime)))
	require.NoError(t, q.Enqueue(ctx, Job("fresh", BaseTime.Add(time.Second))))

	_, err := q.ClaimNext(ctx, BaseTime)
	require.NoError(t, err)

	_, err = q.ClaimNext(ctx, BaseTime.Add(time.Minute))
	require.NoError(t, err)

	released, err := q.ReleaseStale(ctx, BaseTime.Add(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	reclaimed, err := q.ClaimNext(ctx, BaseTime.Add(2*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	assert.Equal(t, "old", reclaimed.ID)
	assert.Equal(t, 0, reclaimed.Attempts)

	none, err := q.ClaimNext(ctx, BaseTime.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Nil(t, none)
}

func testConcurrentClaims(t *testing.T, q queue.Queue) {
	ctx := context.Background()

	const jobs = 30

	for i := range jobs {
		require.NoError(t, q.Enqueue(ctx, Job(fmt.Sprintf("c-%02d", i), BaseTime.Add(-time.Duration(i)*time.Millisecond))))
	}

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
	)

	for range 6 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for {
				job, err := q.ClaimNext(ctx, BaseTime)
				if !assert.NoError(t, err) || job == nil {
					return
				}

				mu.Lock()
				seen[job.ID]++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	assert.Len(t, seen, jobs)

	for id, count := range seen {
		assert.Equal(t, 1, count, "job %s claimed more than once", id)
	}
}
