package window

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_ReturnsFnResult(t *testing.T) {
	w := New(1)
	boom := errors.New("boom")

	assert.NoError(t, w.Do(context.Background(), func(context.Context) error { return nil }))
	assert.ErrorIs(t, w.Do(context.Background(), func(context.Context) error { return boom }), boom)
	assert.Equal(t, 0, w.InFlight(), "slots are released on every outcome")
}

func TestDo_BoundsConcurrency(t *testing.T) {
	testCases := []struct {
		name     string
		capacity int
		jobs     int
		wantPeak int
	}{
		{name: "window of one serializes", capacity: 1, jobs: 5, wantPeak: 1},
		{name: "window of three", capacity: 3, jobs: 9, wantPeak: 3},
		{name: "window larger than load", capacity: 10, jobs: 4, wantPeak: 4},
		{name: "unlimited", capacity: 0, jobs: 6, wantPeak: 6},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			w := New(tc.capacity)

			var running, maxRunning atomic.Int64
			var wg sync.WaitGroup
			// All jobs block until every admitted job has arrived, so the
			// peak is reached deterministically.
			release := make(chan struct{})
			arrived := make(chan struct{}, tc.jobs)

			for i := 0; i < tc.jobs; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_ = w.Do(context.Background(), func(context.Context) error {
						n := running.Add(1)
						for {
							m := maxRunning.Load()
							if n <= m || maxRunning.CompareAndSwap(m, n) {
								break
							}
						}
						arrived <- struct{}{}
						<-release
						running.Add(-1)
						return nil
					})
				}()
			}

			for i := 0; i < tc.wantPeak; i++ {
				<-arrived
			}
			// Give a misbehaving window the chance to over-admit.
			time.Sleep(20 * time.Millisecond)
			close(release)
			wg.Wait()

			assert.EqualValues(t, tc.wantPeak, maxRunning.Load())
			assert.Equal(t, tc.wantPeak, w.Peak())
			assert.Equal(t, 0, w.InFlight())
		})
	}
}

func TestDo_CancelledWhileWaiting(t *testing.T) {
	w := New(1)
	hold := make(chan struct{})
	entered := make(chan struct{})

	go func() {
		_ = w.Do(context.Background(), func(context.Context) error {
			close(entered)
			<-hold
			return nil
		})
	}()
	<-entered

	ctx, cancel := context.WithCancel(context.Background())
	ran := false
	done := make(chan error, 1)
	go func() {
		done <- w.Do(ctx, func(context.Context) error {
			ran = true
			return nil
		})
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("waiter did not give up after cancellation")
	}
	assert.False(t, ran)

	close(hold)
	require.Eventually(t, func() bool { return w.InFlight() == 0 }, time.Second, 5*time.Millisecond)
}

func TestDo_CancelledBeforeAdmission(t *testing.T) {
	for _, capacity := range []int{0, 1} {
		w := New(capacity)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		ran := false
		err := w.Do(ctx, func(context.Context) error {
			ran = true
			return nil
		})

		assert.ErrorIs(t, err, context.Canceled, "capacity %d", capacity)
		assert.False(t, ran, "capacity %d: fn must not run once ctx has ended", capacity)
		assert.Zero(t, w.InFlight())
		assert.Zero(t, w.Peak())
		require.NoError(t, w.Do(context.Background(), func(context.Context) error { return nil }),
			"capacity %d: the slot is released", capacity)
	}
}

func TestCapacity(t *testing.T) {
	assert.Equal(t, 0, New(0).Capacity())
	assert.Equal(t, 0, New(-3).Capacity())
	assert.Equal(t, 4, New(4).Capacity())
}
