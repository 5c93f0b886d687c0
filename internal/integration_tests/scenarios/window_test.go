package integration_tests

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/jobgrid/internal/app"
	"github.com/vk/jobgrid/internal/integration_tests/harness"
	"github.com/vk/jobgrid/internal/testutil"
)

func probes(count int, duration string) string {
	var b strings.Builder
	for i := 1; i <= count; i++ {
		fmt.Fprintf(&b, "job \"probe\" \"p%d\" {\n  arguments {\n    duration = %q\n  }\n}\n\n", i, duration)
	}
	return b.String()
}

// TestScenario_WindowThrottlesFanOut runs six independent 200ms jobs in a
// window of two: they go by pairs, so the run takes about 600ms.
func TestScenario_WindowThrottlesFanOut(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	rec := testutil.NewRecorder()
	files := map[string]string{
		"main.hcl": "scheduler {\n  window = 2\n}\n\n" + probes(6, "200ms"),
	}

	// --- Act ---
	start := time.Now()
	result := harness.Run(context.Background(), t, files, app.Config{}, &harness.ProbeModule{Rec: rec})
	elapsed := time.Since(start)

	// --- Assert ---
	require.NoError(t, result.Err)
	assert.Equal(t, 2, rec.Peak())
	assert.Len(t, rec.Order(), 6)
	assert.GreaterOrEqual(t, elapsed, 600*time.Millisecond)
	assert.Less(t, elapsed, 3*time.Second)
}

// TestScenario_UnboundedFanOut runs the same jobs without a window.
func TestScenario_UnboundedFanOut(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	rec := testutil.NewRecorder()
	files := map[string]string{"main.hcl": probes(6, "200ms")}

	// --- Act ---
	start := time.Now()
	result := harness.Run(context.Background(), t, files, app.Config{}, &harness.ProbeModule{Rec: rec})
	elapsed := time.Since(start)

	// --- Assert ---
	require.NoError(t, result.Err)
	assert.Equal(t, 6, rec.Peak())
	assert.Less(t, elapsed, time.Second)
}

// TestScenario_CLIWindowOverridesGrid checks that a window given on the
// command line wins over the grid's scheduler block.
func TestScenario_CLIWindowOverridesGrid(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	rec := testutil.NewRecorder()
	files := map[string]string{
		"main.hcl": "scheduler {\n  window = 6\n}\n\n" + probes(4, "100ms"),
	}

	// --- Act ---
	result := harness.Run(context.Background(), t, files, app.Config{Window: 1}, &harness.ProbeModule{Rec: rec})

	// --- Assert ---
	require.NoError(t, result.Err)
	assert.Equal(t, 1, rec.Peak())
}
