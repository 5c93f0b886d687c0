package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/vk/jobgrid/internal/ctxlog"
	"github.com/vk/jobgrid/internal/grid"
	"github.com/vk/jobgrid/internal/registry"
	"github.com/vk/jobgrid/internal/scheduler"
)

// ErrRunFailed is returned by Run when the scheduler's verdict is negative.
var ErrRunFailed = errors.New("run failed")

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	closeLog func() error
	config   *Config
	registry *registry.Registry
	metrics  metrics.Registry
	loader   *grid.Loader
}

// NewApp is the constructor for the main application. It returns an App with
// its own isolated logger and registry. The core job kinds are always
// registered; modules add more.
func NewApp(outW io.Writer, cfg *Config, modules ...registry.Module) (*App, error) {
	logger, closeLog := newLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogFile, outW)
	logger.Debug("Logger configured successfully.")

	env, err := grid.Environ(cfg.EnvFiles...)
	if err != nil {
		_ = closeLog()
		return nil, err
	}

	m := metrics.NewRegistry()
	reg := registry.New(registry.WithMetrics(m))
	for _, mod := range append(coreModules(outW), modules...) {
		mod.Register(reg)
	}
	logger.Debug("All job kinds registered.", "kinds", reg.Kinds())

	return &App{
		outW:     outW,
		logger:   logger,
		closeLog: closeLog,
		config:   cfg,
		registry: reg,
		metrics:  m,
		loader:   grid.NewLoader(grid.WithEnv(env)),
	}, nil
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Close releases the log file, if any.
func (a *App) Close() error {
	return a.closeLog()
}

// Run loads the grid, runs it and reports. A negative verdict returns an
// error wrapping ErrRunFailed after the debrief has been written to the
// output.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	g, err := a.loader.Load(ctx, a.config.GridPaths...)
	if err != nil {
		return fmt.Errorf("failed to load grid: %w", err)
	}
	a.logger.Info("Grids loaded successfully.", "jobs_found", len(g.Jobs))

	jobs, err := a.registry.Build(ctx, g)
	if err != nil {
		return fmt.Errorf("failed to build jobs: %w", err)
	}

	opts, label := a.runOptions(g.Settings)
	s := scheduler.New(jobs,
		scheduler.WithLogger(a.logger),
		scheduler.WithVerbose(a.config.Verbose),
		scheduler.WithLabel(label),
		scheduler.WithShutdownGrace(a.shutdownGrace()),
	)

	if a.config.DryRun {
		if err := s.List(a.outW); err != nil {
			return fmt.Errorf("grid is not runnable: %w", err)
		}
		a.logger.Info("Dry run: grid is valid.", "jobs", s.Len())
		return nil
	}

	a.logger.Info("🚀 Starting run...", "jobs", s.Len(), "timeout", opts.Timeout, "window", opts.Window)
	ok, err := s.Run(ctx, opts)
	if err != nil {
		return fmt.Errorf("cannot run grid: %w", err)
	}
	if a.config.Verbose {
		a.writeTimings()
	}
	if !ok {
		if err := s.Debrief(a.outW); err != nil {
			a.logger.Error("Debrief failed", "error", err)
		}
		return fmt.Errorf("%w: %s", ErrRunFailed, s.Why())
	}

	a.logger.Info("🏁 Run finished.", "verdict", s.Why())
	return nil
}

// runOptions merges CLI values over the grid's scheduler block.
func (a *App) runOptions(settings grid.Settings) (scheduler.RunOptions, string) {
	opts := scheduler.RunOptions{Timeout: settings.Timeout, Window: settings.Window}
	if a.config.Timeout > 0 {
		opts.Timeout = a.config.Timeout
	}
	if a.config.Window > 0 {
		opts.Window = a.config.Window
	}
	return opts, settings.Label
}

func (a *App) shutdownGrace() time.Duration {
	if a.config.ShutdownGrace > 0 {
		return a.config.ShutdownGrace
	}
	return scheduler.DefaultShutdownGrace
}

// writeTimings prints one line per job timer: runs, errors, mean and max.
func (a *App) writeTimings() {
	type row struct {
		name  string
		timer metrics.Timer
	}
	var rows []row
	a.metrics.Each(func(name string, i interface{}) {
		if t, ok := i.(metrics.Timer); ok {
			rows = append(rows, row{name: name, timer: t})
		}
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].name < rows[j].name })

	tw := tabwriter.NewWriter(a.outW, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "timer\truns\terrors\tmean\tmax")
	for _, r := range rows {
		var errs int64
		if c, ok := a.metrics.Get(r.name + ".errors").(metrics.Counter); ok {
			errs = c.Count()
		}
		snap := r.timer.Snapshot()
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", r.name, snap.Count(), errs,
			time.Duration(snap.Mean()).Round(time.Microsecond), time.Duration(snap.Max()).Round(time.Microsecond))
	}
	_ = tw.Flush()
}
