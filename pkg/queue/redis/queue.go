// Package redis provides a queue backend on Redis sorted sets. Every
// operation is a single Lua script, so claims are atomic across processes.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/asdev/flowrunner/pkg/models"
	"github.com/asdev/flowrunner/pkg/queue"
	goredis "github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "{flowrunner}:queue"

// Queue implements queue.Queue. Each job is a hash; the ready set is scored
// by available time and the claimed set by claim time, both in unix
// microseconds. The hash keeps the exact available time.
type Queue struct {
	client    goredis.UniversalClient
	logger    *slog.Logger
	prefix    string
	ownClient bool
}

var _ queue.Queue = (*Queue)(nil)

type Option func(*Queue)

// WithKeyPrefix namespaces all keys. Keep a {hash tag} in it on Redis Cluster.
func WithKeyPrefix(prefix string) Option {
	return func(q *Queue) {
		q.prefix = prefix
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

// NewQueue wraps an existing client. Close does not close it.
func NewQueue(client goredis.UniversalClient, opts ...Option) *Queue {
	q := &Queue{
		client: client,
		logger: slog.Default(),
		prefix: DefaultKeyPrefix,
	}

	for _, opt := range opts {
		opt(q)
	}

	q.logger = q.logger.With("module", "redis_queue")

	return q
}

// NewQueueFromURL connects to a redis:// or rediss:// URL and checks the
// connection.
func NewQueueFromURL(ctx context.Context, logger *slog.Logger, redisURL string, opts ...Option) (*Queue, error) {
	options, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := goredis.NewClient(options)

	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	q := NewQueue(client, append([]Option{WithLogger(logger)}, opts...)...)
	q.ownClient = true

	return q, nil
}

func (q *Queue) readyKey() string {
	return q.prefix + ":ready"
}

func (q *Queue) claimedKey() string {
	return q.prefix + ":claimed"
}

func (q *Queue) jobKeyPrefix() string {
	return q.prefix + ":job:"
}

func (q *Queue) keys() []string {
	return []string{q.readyKey(), q.claimedKey()}
}

// scoreFloor is used for "now" bounds, scoreCeil for due times, so a job is
// never claimable before its exact available time.
func scoreFloor(t time.Time) string {
	return strconv.FormatInt(t.Truncate(time.Microsecond).UnixMicro(), 10)
}

func scoreCeil(t time.Time) string {
	truncated := t.Truncate(time.Microsecond)
	if truncated.Before(t) {
		truncated = truncated.Add(time.Microsecond)
	}

	return strconv.FormatInt(truncated.UnixMicro(), 10)
}

func exactTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func (q *Queue) Enqueue(ctx context.Context, job models.QueueJob) error {
	created, err := enqueueScript.Run(ctx, q.client, q.keys(),
		q.jobKeyPrefix(),
		job.ID,
		job.RunID,
		job.StepID,
		string(queue.NormalizePayload(job.Payload)),
		exactTime(job.AvailableAt),
		scoreCeil(job.AvailableAt),
		strconv.Itoa(job.Attempts),
		strconv.Itoa(job.MaxAttempts),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}

	if created == 0 {
		return fmt.Errorf("job '%s': %w", job.ID, queue.ErrJobAlreadyExists)
	}

	return nil
}

func (q *Queue) ClaimNext(ctx context.Context, now time.Time) (*models.QueueJob, error) {
	fields, err := claimScript.Run(ctx, q.client, q.keys(), q.jobKeyPrefix(), scoreFloor(now)).StringSlice()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	job, err := decodeJob(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to decode claimed job: %w", err)
	}

	return job, nil
}

func decodeJob(fields []string) (*models.QueueJob, error) {
	if len(fields)%2 != 0 {
		return nil, fmt.Errorf("odd number of hash fields: %d", len(fields))
	}

	values := make(map[string]string, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		values[fields[i]] = fields[i+1]
	}

	availableAt, err := time.Parse(time.RFC3339Nano, values["available_at"])
	if err != nil {
		return nil, fmt.Errorf("invalid available_at: %w", err)
	}

	attempts, err := strconv.Atoi(values["attempts"])
	if err != nil {
		return nil, fmt.Errorf("invalid attempts: %w", err)
	}

	maxAttempts, err := strconv.Atoi(values["max_attempts"])
	if err != nil {
		return nil, fmt.Errorf("invalid max_attempts: %w", err)
	}

	return &models.QueueJob{
		ID:          values["id"],
		RunID:       values["run_id"],
		StepID:      values["step_id"],
		Payload:     []byte(values["payload"]),
		AvailableAt: availableAt.UTC(),
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
	}, nil
}

func (q *Queue) Ack(ctx context.Context, jobID string) (bool, error) {
	existed, err := ackScript.Run(ctx, q.client, q.keys(), q.jobKeyPrefix(), jobID).Int()
	if err != nil {
		return false, fmt.Errorf("failed to ack job %s: %w", jobID, err)
	}

	return existed > 0, nil
}

func (q *Queue) Fail(ctx context.Context, jobID string, nextAvailableAt time.Time) (bool, error) {
	existed, err := failScript.Run(ctx, q.client, q.keys(), q.jobKeyPrefix(), jobID,
		exactTime(nextAvailableAt), scoreCeil(nextAvailableAt)).Int()
	if err != nil {
		return false, fmt.Errorf("failed to fail job %s: %w", jobID, err)
	}

	return existed > 0, nil
}

func (q *Queue) ReleaseStale(ctx context.Context, claimedBefore time.Time) (int, error) {
	released, err := releaseStaleScript.Run(ctx, q.client, q.keys(), q.jobKeyPrefix(), scoreFloor(claimedBefore)).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to release stale claims: %w", err)
	}

	if released > 0 {
		q.logger.InfoContext(ctx, "Released stale claims", "count", released)
	}

	return released, nil
}

// HealthCheck pings the server.
func (q *Queue) HealthCheck(ctx context.Context) error {
	err := q.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

// Close closes the client when the queue created it.
func (q *Queue) Close() error {
	if !q.ownClient {
		return nil
	}

	return q.client.Close()
}
