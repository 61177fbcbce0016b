// Package memory provides an in-process queue for tests and single-process
// deployments.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/asdev/flowrunner/pkg/models"
	"github.com/asdev/flowrunner/pkg/queue"
)

// Queue keeps jobs in a map guarded by one mutex.
type Queue struct {
	mu      sync.Mutex
	jobs    map[string]models.QueueJob
	claimed map[string]time.Time
}

var _ queue.Queue = (*Queue)(nil)

func NewQueue() *Queue {
	return &Queue{
		jobs:    make(map[string]models.QueueJob),
		claimed: make(map[string]time.Time),
	}
}

func (q *Queue) Enqueue(_ context.Context, job models.QueueJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.jobs[job.ID]; exists {
		return fmt.Errorf("job '%s': %w", job.ID, queue.ErrJobAlreadyExists)
	}

	job.Payload = append([]byte(nil), queue.NormalizePayload(job.Payload)...)
	q.jobs[job.ID] = job

	return nil
}

func (q *Queue) ClaimNext(_ context.Context, now time.Time) (*models.QueueJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var next *models.QueueJob

	for id, job := range q.jobs {
		if _, isClaimed := q.claimed[id]; isClaimed || job.AvailableAt.After(now) {
			continue
		}

		if next == nil || earlier(job, *next) {
			candidate := job
			next = &candidate
		}
	}

	if next == nil {
		return nil, nil
	}

	q.claimed[next.ID] = now

	return next, nil
}

func earlier(a, b models.QueueJob) bool {
	if a.AvailableAt.Equal(b.AvailableAt) {
		return a.ID < b.ID
	}

	return a.AvailableAt.Before(b.AvailableAt)
}

func (q *Queue) Ack(_ context.Context, jobID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.jobs[jobID]; !exists {
		return false, nil
	}

	delete(q.jobs, jobID)
	delete(q.claimed, jobID)

	return true, nil
}

func (q *Queue) Fail(_ context.Context, jobID string, nextAvailableAt time.Time) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, exists := q.jobs[jobID]
	if !exists {
		return false, nil
	}

	job.Attempts++
	job.AvailableAt = nextAvailableAt
	q.jobs[jobID] = job
	delete(q.claimed, jobID)

	return true, nil
}

func (q *Queue) ReleaseStale(_ context.Context, claimedBefore time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	released := 0

	for id, claimedAt := range q.claimed {
		if claimedAt.Before(claimedBefore) {
			delete(q.claimed, id)

			released++
		}
	}

	return released, nil
}

// Len returns the number of jobs held, claimed or not.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.jobs)
}

func (q *Queue) Close() error {
	return nil
}
