// Package window implements the admission window of a scheduler run: a gate
// that bounds how many job executions may be in flight at the same time.
package window

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Window bounds concurrent executions. The zero capacity means unlimited.
type Window struct {
	capacity int
	sem      *semaphore.Weighted

	inFlight atomic.Int64
	peak     atomic.Int64
}

// New creates a window admitting at most capacity executions at once.
// A capacity of zero or less disables the bound.
func New(capacity int) *Window {
	w := &Window{capacity: capacity}
	if capacity > 0 {
		w.sem = semaphore.NewWeighted(int64(capacity))
	}
	return w
}

// Capacity returns the configured bound, 0 meaning unlimited.
func (w *Window) Capacity() int {
	if w.capacity < 0 {
		return 0
	}
	return w.capacity
}

// Do waits for a free slot, runs fn and releases the slot whatever fn
// returns. If ctx has ended by the time a slot is granted, fn is not run
// and ctx.Err() is returned.
func (w *Window) Do(ctx context.Context, fn func(context.Context) error) error {
	if w.sem != nil {
		if err := w.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		defer w.sem.Release(1)
	}
	// Acquire may win against a cancellation that happened while waiting.
	if err := ctx.Err(); err != nil {
		return err
	}

	n := w.inFlight.Add(1)
	defer w.inFlight.Add(-1)
	for {
		p := w.peak.Load()
		if n <= p || w.peak.CompareAndSwap(p, n) {
			break
		}
	}

	return fn(ctx)
}

// InFlight returns the number of executions currently admitted.
func (w *Window) InFlight() int {
	return int(w.inFlight.Load())
}

// Peak returns the highest number of simultaneous executions seen so far.
func (w *Window) Peak() int {
	return int(w.peak.Load())
}
