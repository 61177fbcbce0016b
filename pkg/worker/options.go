package worker

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultConcurrency    = 1
	DefaultPollInterval   = time.Second
	DefaultReaperInterval = time.Minute
	DefaultStaleAfter     = 15 * time.Minute
	DefaultRetryInitial   = 5 * time.Second
	DefaultRetryMax       = 10 * time.Minute
	DefaultRetryJitter    = 0.5
	finalizeTimeout       = 10 * time.Second
)

type Option func(*Worker)

func WithID(id string) Option {
	return func(w *Worker) {
		w.id = id
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithConcurrency(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithPollInterval is how long an idle loop waits before claiming again.
func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithStaleClaims configures the reaper: every interval, claims older than
// staleAfter are released. staleAfter must exceed the longest run.
func WithStaleClaims(interval, staleAfter time.Duration) Option {
	return func(w *Worker) {
		w.reaperInterval = interval
		w.staleAfter = staleAfter
	}
}

// WithRetryBackoff shapes the exponential delay before a failed job is
// claimable again. jitter is the randomization factor, 0 for none.
func WithRetryBackoff(initial, maxDelay time.Duration, jitter float64) Option {
	return func(w *Worker) {
		w.retryInitial = initial
		w.retryMax = maxDelay
		w.retryJitter = jitter
	}
}

// WithRetryFailedRuns makes a run that ends FAILED count as a job failure,
// so it is rescheduled until the job's attempts are used up.
func WithRetryFailedRuns(retry bool) Option {
	return func(w *Worker) {
		w.retryFailedRuns = retry
	}
}

func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		w.now = now
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(w *Worker) {
		w.tracer = tracer
	}
}
