// Package postgresql provides the durable queue backend. Claims take a row
// lock and skip rows other workers hold, so concurrent workers never share
// a job.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/asdev/flowrunner/pkg/models"
	"github.com/asdev/flowrunner/pkg/persistence/sqlbase"
	"github.com/asdev/flowrunner/pkg/queue"
	_ "github.com/lib/pq" // registers the "postgres" driver
)

const claimQuery = `
WITH next_job AS (
	SELECT id
	FROM queue_jobs
	WHERE available_at <= $1 AND claimed_at IS NULL
	ORDER BY available_at ASC, id ASC
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
UPDATE queue_jobs AS q
SET claimed_at = $1
FROM next_job
WHERE q.id = next_job.id
RETURNING q.id, q.run_id, q.step_id, q.payload, q.available_at, q.attempts, q.max_attempts`

const (
	enqueueQuery = `
		INSERT INTO queue_jobs (id, run_id, step_id, payload, available_at, attempts, max_attempts)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`
	ackQuery          = `DELETE FROM queue_jobs WHERE id = $1`
	failQuery         = `UPDATE queue_jobs SET attempts = attempts + 1, available_at = $2, claimed_at = NULL WHERE id = $1`
	releaseStaleQuery = `UPDATE queue_jobs SET claimed_at = NULL WHERE claimed_at IS NOT NULL AND claimed_at < $1`
)

// ClaimQuery returns the statement ClaimNext runs.
func ClaimQuery() string {
	return claimQuery
}

// Queue implements queue.Queue on a queue_jobs table.
type Queue struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ queue.Queue = (*Queue)(nil)

// NewQueue connects to databaseURL and brings the schema up to date.
func NewQueue(ctx context.Context, logger *slog.Logger, databaseURL string) (*Queue, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	q := NewQueueWithDB(logger, database)

	err = q.Migrate(ctx)
	if err != nil {
		_ = database.Close()

		return nil, err
	}

	return q, nil
}

// NewQueueWithDB wraps an open database without touching the schema.
func NewQueueWithDB(logger *slog.Logger, db *sql.DB) *Queue {
	return &Queue{
		db:     db,
		logger: logger.With("module", "postgres_queue"),
	}
}

func (q *Queue) Migrate(ctx context.Context) error {
	err := sqlbase.NewMigrationManager(q.logger, q.db, migrations()).RunMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func (q *Queue) Enqueue(ctx context.Context, job models.QueueJob) error {
	result, err := q.db.ExecContext(ctx, enqueueQuery,
		job.ID,
		job.RunID,
		job.StepID,
		string(queue.NormalizePayload(job.Payload)),
		job.AvailableAt,
		job.Attempts,
		job.MaxAttempts,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}

	if affected == 0 {
		return fmt.Errorf("job '%s': %w", job.ID, queue.ErrJobAlreadyExists)
	}

	return nil
}

func (q *Queue) ClaimNext(ctx context.Context, now time.Time) (*models.QueueJob, error) {
	transaction, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}

	var (
		job     models.QueueJob
		payload []byte
	)

	err = transaction.QueryRowContext(ctx, claimQuery, now).Scan(
		&job.ID,
		&job.RunID,
		&job.StepID,
		&payload,
		&job.AvailableAt,
		&job.Attempts,
		&job.MaxAttempts,
	)
	if err != nil {
		_ = transaction.Rollback()

		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	err = transaction.Commit()
	if err != nil {
		return nil, fmt.Errorf("failed to commit claim of job %s: %w", job.ID, err)
	}

	job.Payload = payload

	return &job, nil
}

func (q *Queue) Ack(ctx context.Context, jobID string) (bool, error) {
	return q.execAffecting(ctx, "ack", ackQuery, jobID)
}

func (q *Queue) Fail(ctx context.Context, jobID string, nextAvailableAt time.Time) (bool, error) {
	return q.execAffecting(ctx, "fail", failQuery, jobID, nextAvailableAt)
}

func (q *Queue) ReleaseStale(ctx context.Context, claimedBefore time.Time) (int, error) {
	result, err := q.db.ExecContext(ctx, releaseStaleQuery, claimedBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to release stale claims: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to release stale claims: %w", err)
	}

	if affected > 0 {
		q.logger.InfoContext(ctx, "Released stale claims", "count", affected)
	}

	return int(affected), nil
}

func (q *Queue) execAffecting(ctx context.Context, operation, query string, args ...any) (bool, error) {
	result, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to %s job %v: %w", operation, args[0], err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to %s job %v: %w", operation, args[0], err)
	}

	return affected > 0, nil
}

// HealthCheck verifies the database connection is healthy.
func (q *Queue) HealthCheck(ctx context.Context) error {
	err := q.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (q *Queue) Close() error {
	err := q.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	return nil
}
