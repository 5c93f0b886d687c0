package heartbeat

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/jobgrid/internal/ctxlog"
	"github.com/vk/jobgrid/internal/grid"
	"github.com/vk/jobgrid/internal/registry"
	"github.com/vk/jobgrid/internal/testutil"
)

func load(t *testing.T, src string) *grid.Grid {
	t.Helper()
	g, err := grid.NewLoader(grid.WithEnv(map[string]string{})).LoadSource("hb.hcl", []byte(src))
	require.NoError(t, err)
	return g
}

func TestHeartbeat_BeatsUntilCanceled(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	r := registry.New()
	(&Module{}).Register(r)
	jobs, err := r.Build(context.Background(), load(t, `
job "heartbeat" "pulse" {
  arguments {
    schedule = "@every 1s"
    message  = "still alive"
  }
}`))
	require.NoError(t, err)
	logger, logs := testutil.NewLogger()
	ctx, cancel := context.WithCancel(ctxlog.WithLogger(context.Background(), logger))

	// --- Act ---
	done := make(chan error, 1)
	go func() { done <- jobs[0].Run(ctx) }()

	// --- Assert ---
	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "still alive")
	}, 5*time.Second, 50*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("heartbeat did not stop")
	}
	assert.True(t, jobs[0].Forever())
}

func TestHeartbeat_InvalidSchedule(t *testing.T) {
	t.Parallel()

	r := registry.New()
	(&Module{}).Register(r)

	_, err := r.Build(context.Background(), load(t, `
job "heartbeat" "pulse" {
  arguments {
    schedule = "every now and then"
  }
}`))

	assert.ErrorContains(t, err, "invalid schedule")
}
