// Package queue defines the job queue that hands workflow runs to workers.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/asdev/flowrunner/pkg/models"
)

var ErrJobAlreadyExists = errors.New("queue: job already exists")

// Queue is a durable-or-not store of jobs with exclusive claims.
//
// ClaimNext returns the eligible job with the smallest AvailableAt and marks
// it claimed; (nil, nil) means there is no work. Ack removes a job, Fail
// releases its claim, bumps Attempts and moves AvailableAt. Both report
// whether the job existed; unknown ids are not errors. ReleaseStale frees
// claims taken before claimedBefore without touching Attempts.
type Queue interface {
	Enqueue(ctx context.Context, job models.QueueJob) error
	ClaimNext(ctx context.Context, now time.Time) (*models.QueueJob, error)
	Ack(ctx context.Context, jobID string) (bool, error)
	Fail(ctx context.Context, jobID string, nextAvailableAt time.Time) (bool, error)
	ReleaseStale(ctx context.Context, claimedBefore time.Time) (int, error)
	Close() error
}

// EmptyPayload is stored for jobs enqueued without a payload.
var EmptyPayload = []byte("{}")

// NormalizePayload returns payload, or "{}" when it is empty.
func NormalizePayload(payload []byte) []byte {
	if len(payload) == 0 {
		return EmptyPayload
	}

	return payload
}
