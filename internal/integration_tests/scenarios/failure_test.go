package integration_tests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/jobgrid/internal/app"
	"github.com/vk/jobgrid/internal/integration_tests/harness"
	"github.com/vk/jobgrid/internal/testutil"
)

// TestScenario_CriticalFailureStopsEverything: a critical job fails while a
// long non-critical job is running. The long job is canceled, the dependent
// never starts and every job is shut down exactly once.
func TestScenario_CriticalFailureStopsEverything(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	rec := testutil.NewRecorder()
	files := map[string]string{
		"main.hcl": `
job "probe" "breaker" {
  arguments {
    duration  = "50ms"
    fail_with = "breaker tripped"
  }
}

job "probe" "long" {
  critical = false
  arguments {
    duration = "10s"
  }
}

job "probe" "after" {
  requires = ["breaker"]
}
`,
	}

	// --- Act ---
	start := time.Now()
	result := harness.Run(context.Background(), t, files, app.Config{}, &harness.ProbeModule{Rec: rec})

	// --- Assert ---
	require.ErrorIs(t, result.Err, app.ErrRunFailed)
	assert.Contains(t, result.Err.Error(), "CRITICAL")
	assert.Less(t, time.Since(start), 5*time.Second)

	long, ok := rec.Record("long")
	require.True(t, ok)
	assert.ErrorIs(t, long.Err, context.Canceled)
	assert.False(t, rec.Started("after"))
	for _, name := range []string{"breaker", "long", "after"} {
		assert.Equal(t, 1, rec.Shutdowns(name), "shutdown of %s", name)
	}
	assert.Contains(t, result.Output, "critical: breaker: breaker tripped")
}

// TestScenario_NonCriticalFailureIsTolerated lets dependents of a failed
// non-critical job run, and the run succeeds.
func TestScenario_NonCriticalFailureIsTolerated(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	rec := testutil.NewRecorder()
	files := map[string]string{
		"main.hcl": `
job "probe" "flaky" {
  critical = false
  arguments {
    fail_with = "meh"
  }
}

job "probe" "after" {
  requires = ["flaky"]
}
`,
	}

	// --- Act ---
	result := harness.Run(context.Background(), t, files, app.Config{}, &harness.ProbeModule{Rec: rec})

	// --- Assert ---
	require.NoError(t, result.Err)
	assert.True(t, rec.Started("after"))
	flaky, _ := rec.Record("flaky")
	assert.EqualError(t, flaky.Err, "meh")
}

// TestScenario_TimeoutCancelsRunningJobs gives up after the grid timeout.
func TestScenario_TimeoutCancelsRunningJobs(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	rec := testutil.NewRecorder()
	files := map[string]string{
		"main.hcl": `
scheduler {
  timeout = "150ms"
}

job "probe" "stuck" {
  arguments {
    block = true
  }
}
`,
	}

	// --- Act ---
	result := harness.Run(context.Background(), t, files, app.Config{}, &harness.ProbeModule{Rec: rec})

	// --- Assert ---
	require.ErrorIs(t, result.Err, app.ErrRunFailed)
	assert.Contains(t, result.Err.Error(), "TIMED OUT after 150ms")
	assert.Equal(t, 1, rec.Shutdowns("stuck"))
}
