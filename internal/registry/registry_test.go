package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/jobgrid/internal/grid"
	"github.com/vk/jobgrid/internal/job"
)

type echoArgs struct {
	Text string `hcl:"text"`
}

// echoKind records the decoded text of every job it runs.
func echoKind(seen *[]string) Kind {
	return func(ctx context.Context, spec *grid.JobSpec) (*Runnable, error) {
		var args echoArgs
		if err := spec.Decode(&args); err != nil {
			return nil, err
		}
		return &Runnable{Action: func(context.Context) error {
			*seen = append(*seen, args.Text)
			return nil
		}}, nil
	}
}

func serverKind(ctx context.Context, spec *grid.JobSpec) (*Runnable, error) {
	return &Runnable{
		Action:   func(ctx context.Context) error { <-ctx.Done(); return nil },
		Shutdown: func(context.Context) error { return errors.New("stopped") },
		Forever:  true,
	}, nil
}

func load(t *testing.T, src string) *grid.Grid {
	t.Helper()
	g, err := grid.NewLoader(grid.WithEnv(map[string]string{})).LoadSource("test.hcl", []byte(src))
	require.NoError(t, err)
	return g
}

func TestBuild_WiresFlagsAndRequirements(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	var seen []string
	r := New()
	r.RegisterKind("echo", echoKind(&seen))
	r.RegisterKind("server", serverKind)
	g := load(t, `
job "echo" "first" {
  arguments { text = "one" }
}
job "echo" "second" {
  requires = ["first", "api"]
  critical = false
  arguments { text = "two" }
}
job "server" "api" {}
`)

	// --- Act ---
	jobs, err := r.Build(context.Background(), g)

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	first, second, api := jobs[0], jobs[1], jobs[2]

	assert.Equal(t, "first", first.String())
	assert.True(t, first.Critical(), "jobs are critical unless the block says otherwise")
	assert.False(t, second.Critical())
	assert.Equal(t, []job.Job{first, api}, second.Requires())
	assert.True(t, api.Forever())
	assert.EqualError(t, api.Shutdown(context.Background()), "stopped")

	require.NoError(t, first.Run(context.Background()))
	assert.Equal(t, []string{"one"}, seen)
}

func TestBuild_ReportsEveryInvalidJob(t *testing.T) {
	t.Parallel()

	var seen []string
	r := New()
	r.RegisterKind("echo", echoKind(&seen))
	g := load(t, `
job "nope" "a" {}
job "echo" "b" {}
`)

	_, err := r.Build(context.Background(), g)

	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown kind "nope"`)
	assert.Contains(t, err.Error(), `job "b": invalid arguments`)
}

func TestBuild_UnknownRequirement(t *testing.T) {
	t.Parallel()

	r := New()
	r.RegisterKind("server", serverKind)
	g := load(t, `job "server" "a" { requires = ["ghost"] }`)

	_, err := r.Build(context.Background(), g)

	require.Error(t, err)
	assert.Contains(t, err.Error(), `requires unknown job "ghost"`)
}

func TestRegisterKind_DuplicatePanics(t *testing.T) {
	t.Parallel()

	r := New()
	r.RegisterKind("server", serverKind)

	assert.Panics(t, func() { r.RegisterKind("server", serverKind) })
	assert.Equal(t, []string{"server"}, r.Kinds())
}

func TestBuild_RecordsMetrics(t *testing.T) {
	t.Parallel()

	m := metrics.NewRegistry()
	r := New(WithMetrics(m))
	r.RegisterKind("boom", func(ctx context.Context, spec *grid.JobSpec) (*Runnable, error) {
		return &Runnable{Action: func(context.Context) error { return errors.New("boom") }}, nil
	})
	jobs, err := r.Build(context.Background(), load(t, `job "boom" "bang" {}`))
	require.NoError(t, err)

	_ = jobs[0].Run(context.Background())
	_ = jobs[0].Run(context.Background())

	timer, ok := m.Get("job.bang").(metrics.Timer)
	require.True(t, ok)
	assert.Equal(t, int64(2), timer.Count())
	counter, ok := m.Get("job.bang.errors").(metrics.Counter)
	require.True(t, ok)
	assert.Equal(t, int64(2), counter.Count())
}
