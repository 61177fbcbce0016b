package scheduler_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/asdev/flowrunner/pkg/dispatcher"
	"github.com/asdev/flowrunner/pkg/dsl"
	"github.com/asdev/flowrunner/pkg/models"
	"github.com/asdev/flowrunner/pkg/queue/memory"
	"github.com/asdev/flowrunner/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

func scheduled(name, cronExpr string) []byte {
	return fmt.Appendf(nil, `{
		"name": %q,
		"trigger": {"type": "core.schedule", "config": {"cron": %q}},
		"steps": [{"id": "s1", "connector": "core.log", "operation": "write", "input": {"message": "tick"}}]
	}`, name, cronExpr)
}

const formWorkflow = `{
	"name": "onboarding",
	"trigger": {"type": "core.form.submit", "config": {}},
	"steps": [{"id": "s1", "connector": "core.case", "operation": "create", "input": {}}]
}`

func newScheduler() (*scheduler.Scheduler, *memory.Queue) {
	q := memory.NewQueue()
	clock := func() time.Time { return now }
	d := dispatcher.New(q, slog.Default(), dispatcher.WithClock(clock))

	return scheduler.New(d, slog.Default(), scheduler.WithClock(clock)), q
}

func TestRegister(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		workflow  []byte
		scheduled bool
		wantErr   error
	}{
		{name: "schedule trigger", workflow: scheduled("nightly", "0 2 * * *"), scheduled: true},
		{name: "descriptor", workflow: scheduled("hourly", "@every 1h"), scheduled: true},
		{name: "other trigger is skipped", workflow: []byte(formWorkflow)},
		{name: "missing cron", workflow: scheduled("nightly", ""), wantErr: scheduler.ErrCronRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, _ := newScheduler()

			ok, err := s.Register(tt.workflow)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.scheduled, ok)
		})
	}
}

func TestRegister_InvalidCron(t *testing.T) {
	t.Parallel()

	s, _ := newScheduler()

	ok, err := s.Register(scheduled("nightly", "every night at two"))

	require.Error(t, err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "invalid cron expression")
	assert.Empty(t, s.Workflows())
}

func TestRegister_InvalidWorkflow(t *testing.T) {
	t.Parallel()

	s, _ := newScheduler()

	_, err := s.Register([]byte(`{"name": "nightly", "trigger": {"type": "core.schedule"}, "steps": []}`))

	var validationErr *dsl.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestRegister_Duplicate(t *testing.T) {
	t.Parallel()

	s, _ := newScheduler()

	_, err := s.Register(scheduled("nightly", "0 2 * * *"))
	require.NoError(t, err)

	_, err = s.Register(scheduled("nightly", "0 3 * * *"))
	require.ErrorIs(t, err, scheduler.ErrWorkflowScheduled)
}

func TestLoadDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nightly.json"), scheduled("nightly", "0 2 * * *"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hourly.json"), scheduled("hourly", "@hourly"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "form.json"), []byte(formWorkflow), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a workflow"), 0o600))

	s, _ := newScheduler()

	count, err := s.LoadDir(dir)

	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, []string{"hourly", "nightly"}, s.Workflows())
}

func TestLoadDir_InvalidFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{"name": `), 0o600))

	s, _ := newScheduler()

	_, err := s.LoadDir(dir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.json")
}

func TestFire_DispatchesRun(t *testing.T) {
	t.Parallel()

	s, q := newScheduler()

	_, err := s.Register(scheduled("nightly", "0 2 * * *"))
	require.NoError(t, err)

	job, err := s.Fire(context.Background(), "nightly")
	require.NoError(t, err)
	assert.Equal(t, 1, q.Len())

	claimed, err := q.ClaimNext(context.Background(), now)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, job.ID, claimed.ID)

	payload, err := models.DecodeRunPayload(claimed.Payload)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"timestamp": "2025-03-01T12:00:00Z",
		"cron":      "0 2 * * *",
		"workflow":  "nightly",
	}, payload.Trigger)
}

func TestFire_UnknownWorkflow(t *testing.T) {
	t.Parallel()

	s, _ := newScheduler()

	_, err := s.Fire(context.Background(), "nightly")

	require.ErrorIs(t, err, scheduler.ErrUnknownWorkflow)
}

func TestRun_FiresOnSchedule(t *testing.T) {
	t.Parallel()

	s, q := newScheduler()

	_, err := s.Register(scheduled("every-second", "@every 1s"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- s.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return q.Len() > 0
	}, 5*time.Second, 50*time.Millisecond)

	next, ok := s.Next("every-second")
	assert.True(t, ok)
	assert.False(t, next.IsZero())

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
