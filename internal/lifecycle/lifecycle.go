package lifecycle

import (
	"context"
	"sync/atomic"
	"time"
)

var shuttingDown atomic.Bool

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT received.
// Health handler returns 503 with status shutting-down and POST /runs is refused while true.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown returns true if the process is draining and must not start new runs.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

// RunTracker counts collection runs in progress so shutdown can wait for them.
type RunTracker struct {
	count atomic.Int64
}

// Begin marks a run as started and returns the function that marks it done.
func (t *RunTracker) Begin() (done func()) {
	t.count.Add(1)
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			t.count.Add(-1)
		}
	}
}

// Count returns the number of runs in progress.
func (t *RunTracker) Count() int64 {
	return t.count.Load()
}

// WaitForZero blocks until no run is in progress or ctx is done.
func (t *RunTracker) WaitForZero(ctx context.Context, checkInterval time.Duration) error {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for {
		if t.Count() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

var runs = &RunTracker{}

// BeginRun registers a run with the process-wide tracker.
func BeginRun() (done func()) {
	return runs.Begin()
}

// RunsInFlight returns the number of runs the process-wide tracker sees.
func RunsInFlight() int64 {
	return runs.Count()
}

// WaitForRuns blocks until every tracked run has finished or ctx is done.
func WaitForRuns(ctx context.Context, checkInterval time.Duration) error {
	return runs.WaitForZero(ctx, checkInterval)
}
