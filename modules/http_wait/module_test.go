package http_wait

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/jobgrid/internal/grid"
	"github.com/vk/jobgrid/internal/job"
	"github.com/vk/jobgrid/internal/registry"
)

func buildJob(t *testing.T, url, extra string) job.Job {
	t.Helper()
	r := registry.New()
	(&Module{}).Register(r)
	src := fmt.Sprintf(`
job "http_wait" "ready" {
  arguments {
    url      = %q
    interval = "5ms"
    %s
  }
}`, url, extra)
	g, err := grid.NewLoader(grid.WithEnv(map[string]string{})).LoadSource("w.hcl", []byte(src))
	require.NoError(t, err)
	jobs, err := r.Build(context.Background(), g)
	require.NoError(t, err)
	return jobs[0]
}

func TestHTTPWait_RetriesUntilReady(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// The server answers 503 twice before becoming healthy.
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	j := buildJob(t, srv.URL, `give_up_after = "5s"`)

	// --- Act ---
	err := j.Run(context.Background())

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPWait_GivesUp(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()
	j := buildJob(t, srv.URL, `give_up_after = "50ms"`)

	err := j.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not ready after")
	assert.Contains(t, err.Error(), "got status 418")
}

func TestHTTPWait_StopsOnCancel(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	j := buildJob(t, srv.URL, `give_up_after = "1m"`)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := j.Run(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestHTTPWait_DeadlineBetweenRetries(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// Several attempts fit before the deadline, which then falls inside a
	// retry interval or an attempt.
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	j := buildJob(t, srv.URL, `give_up_after = "1m"`)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	// --- Act ---
	err := j.Run(ctx)

	// --- Assert ---
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotContains(t, err.Error(), "not ready after")
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}
