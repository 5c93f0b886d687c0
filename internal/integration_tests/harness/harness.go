// Package harness runs grid files end to end through app.App for the
// integration suites. It also provides the "probe" job kind, whose
// executions are tracked by a testutil.Recorder.
package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vk/jobgrid/internal/app"
	"github.com/vk/jobgrid/internal/grid"
	"github.com/vk/jobgrid/internal/registry"
	"github.com/vk/jobgrid/internal/testutil"
)

// Result holds the outcome of one harness run.
type Result struct {
	Output string
	Err    error
}

// Run writes files into a temporary grid directory and runs it with cfg.
// GridPaths, LogFormat and LogLevel are filled in when empty.
func Run(ctx context.Context, t *testing.T, files map[string]string, cfg app.Config, modules ...registry.Module) *Result {
	t.Helper()

	gridDir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(gridDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	if len(cfg.GridPaths) == 0 {
		cfg.GridPaths = []string{gridDir}
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "debug"
	}
	validated, err := app.NewConfig(cfg)
	require.NoError(t, err)

	out := &testutil.SafeBuffer{}
	a, err := app.NewApp(out, validated, modules...)
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	runErr := a.Run(ctx)
	return &Result{Output: out.String(), Err: runErr}
}

// ProbeModule registers the "probe" kind. A probe sleeps for its duration,
// then fails with fail_with when set. A blocking probe only returns once
// canceled.
type ProbeModule struct {
	Rec *testutil.Recorder
}

// ProbeInput defines the arguments for the probe kind.
type ProbeInput struct {
	Duration string `hcl:"duration,optional"`
	FailWith string `hcl:"fail_with,optional"`
	Block    bool   `hcl:"block,optional"`
}

// Register registers the kind with the registry.
func (m *ProbeModule) Register(r *registry.Registry) {
	r.RegisterKind("probe", m.build)
}

func (m *ProbeModule) build(_ context.Context, spec *grid.JobSpec) (*registry.Runnable, error) {
	var input ProbeInput
	if err := spec.Decode(&input); err != nil {
		return nil, err
	}
	var d time.Duration
	if input.Duration != "" {
		parsed, err := time.ParseDuration(input.Duration)
		if err != nil {
			return nil, fmt.Errorf("job %q: invalid duration: %w", spec.Name, err)
		}
		d = parsed
	}

	action := func(ctx context.Context) error {
		if input.Block {
			<-ctx.Done()
			return ctx.Err()
		}
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
		if input.FailWith != "" {
			return errors.New(input.FailWith)
		}
		return nil
	}
	run, shutdown := m.Rec.Wrap(spec.Name, action)
	return &registry.Runnable{Action: run, Shutdown: shutdown}, nil
}
