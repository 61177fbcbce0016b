package mocks

import (
	"context"
	"time"

	"github.com/asdev/flowrunner/pkg/models"
	"github.com/asdev/flowrunner/pkg/queue"
	"github.com/stretchr/testify/mock"
)

// MockQueue is a mock implementation of queue.Queue interface.
type MockQueue struct {
	mock.Mock
}

var _ queue.Queue = (*MockQueue)(nil)

func (m *MockQueue) Enqueue(ctx context.Context, job models.QueueJob) error {
	args := m.Called(ctx, job)

	return args.Error(0)
}

func (m *MockQueue) ClaimNext(ctx context.Context, now time.Time) (*models.QueueJob, error) {
	args := m.Called(ctx, now)

	job, _ := args.Get(0).(*models.QueueJob)

	return job, args.Error(1)
}

func (m *MockQueue) Ack(ctx context.Context, jobID string) (bool, error) {
	args := m.Called(ctx, jobID)

	return args.Bool(0), args.Error(1)
}

func (m *MockQueue) Fail(ctx context.Context, jobID string, nextAvailableAt time.Time) (bool, error) {
	args := m.Called(ctx, jobID, nextAvailableAt)

	return args.Bool(0), args.Error(1)
}

func (m *MockQueue) ReleaseStale(ctx context.Context, claimedBefore time.Time) (int, error) {
	args := m.Called(ctx, claimedBefore)

	return args.Int(0), args.Error(1)
}

func (m *MockQueue) Close() error {
	args := m.Called()

	return args.Error(0)
}
