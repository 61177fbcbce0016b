package postgresql_test

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/asdev/flowrunner/pkg/models"
	"github.com/asdev/flowrunner/pkg/queue"
	"github.com/asdev/flowrunner/pkg/queue/postgresql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jobColumns = []string{"id", "run_id", "step_id", "payload", "available_at", "attempts", "max_attempts"}

func newMockQueue(t *testing.T) (*postgresql.Queue, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})

	return postgresql.NewQueueWithDB(slog.Default(), db), mock
}

func TestClaimQuery_LocksAndSkipsClaimedRows(t *testing.T) {
	t.Parallel()

	claim := postgresql.ClaimQuery()

	assert.Contains(t, claim, "FOR UPDATE SKIP LOCKED")
	assert.Contains(t, claim, "claimed_at IS NULL")
	assert.Contains(t, claim, "available_at <= $1")
	assert.Contains(t, claim, "ORDER BY available_at ASC")
}

func TestQueue_Enqueue(t *testing.T) {
	t.Parallel()

	q, mock := newMockQueue(t)
	availableAt := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO queue_jobs")).
		WithArgs("job-1", "run-1", "", "{}", availableAt, 0, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := q.Enqueue(context.Background(), models.QueueJob{
		ID: "job-1", RunID: "run-1", AvailableAt: availableAt, MaxAttempts: 3,
	})

	require.NoError(t, err)
}

func TestQueue_Enqueue_Duplicate(t *testing.T) {
	t.Parallel()

	q, mock := newMockQueue(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO queue_jobs")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := q.Enqueue(context.Background(), models.QueueJob{ID: "job-1", Payload: []byte(`{"a":1}`)})

	assert.ErrorIs(t, err, queue.ErrJobAlreadyExists)
}

func TestQueue_ClaimNext(t *testing.T) {
	t.Parallel()

	q, mock := newMockQueue(t)
	now := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(postgresql.ClaimQuery())).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows(jobColumns).
			AddRow("job-1", "run-1", "", []byte(`{"trigger":{}}`), now.Add(-time.Second), 1, 3))
	mock.ExpectCommit()

	job, err := q.ClaimNext(context.Background(), now)

	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, "run-1", job.RunID)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, 3, job.MaxAttempts)
	assert.JSONEq(t, `{"trigger":{}}`, string(job.Payload))
}

func TestQueue_ClaimNext_NoWork(t *testing.T) {
	t.Parallel()

	q, mock := newMockQueue(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(postgresql.ClaimQuery())).
		WillReturnRows(sqlmock.NewRows(jobColumns))
	mock.ExpectRollback()

	job, err := q.ClaimNext(context.Background(), time.Now())

	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestQueue_ClaimNext_Error(t *testing.T) {
	t.Parallel()

	q, mock := newMockQueue(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(postgresql.ClaimQuery())).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := q.ClaimNext(context.Background(), time.Now())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to claim job")
	assert.NotErrorIs(t, err, sql.ErrNoRows)
}

func TestQueue_AckAndFailReportExistence(t *testing.T) {
	t.Parallel()

	q, mock := newMockQueue(t)
	next := time.Date(2025, time.March, 1, 12, 10, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM queue_jobs WHERE id = $1")).
		WithArgs("job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM queue_jobs WHERE id = $1")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE queue_jobs SET attempts = attempts + 1")).
		WithArgs("job-2", next).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE queue_jobs SET attempts = attempts + 1")).
		WithArgs("missing", next).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()

	acked, err := q.Ack(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, acked)

	acked, err = q.Ack(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, acked)

	failed, err := q.Fail(ctx, "job-2", next)
	require.NoError(t, err)
	assert.True(t, failed)

	failed, err = q.Fail(ctx, "missing", next)
	require.NoError(t, err)
	assert.False(t, failed)
}

func TestQueue_ReleaseStale(t *testing.T) {
	t.Parallel()

	q, mock := newMockQueue(t)
	cutoff := time.Date(2025, time.March, 1, 11, 55, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE queue_jobs SET claimed_at = NULL")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 2))

	released, err := q.ReleaseStale(context.Background(), cutoff)

	require.NoError(t, err)
	assert.Equal(t, 2, released)
}
