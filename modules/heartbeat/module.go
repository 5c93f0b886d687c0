// Package heartbeat provides a forever job that logs a line on a cron
// schedule while the rest of the grid runs.
package heartbeat

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"github.com/vk/jobgrid/internal/ctxlog"
	"github.com/vk/jobgrid/internal/grid"
	"github.com/vk/jobgrid/internal/registry"
)

// parser accepts an optional seconds field and descriptors such as
// "@every 5s".
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the heartbeat kind.
type Input struct {
	Schedule string `hcl:"schedule" validate:"required"`
	Message  string `hcl:"message,optional"`
}

// Register registers the kind with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterKind("heartbeat", build)
}

func build(_ context.Context, spec *grid.JobSpec) (*registry.Runnable, error) {
	var input Input
	if err := spec.Decode(&input); err != nil {
		return nil, err
	}
	schedule, err := parser.Parse(input.Schedule)
	if err != nil {
		return nil, fmt.Errorf("job %q: invalid schedule %q: %w", spec.Name, input.Schedule, err)
	}
	if input.Message == "" {
		input.Message = "heartbeat"
	}

	hb := &beater{name: spec.Name, message: input.Message, schedule: schedule}
	return &registry.Runnable{Action: hb.run, Forever: true}, nil
}

type beater struct {
	name     string
	message  string
	schedule cron.Schedule
	beats    atomic.Int64
}

// run beats until ctx is done and waits for a beat in progress to finish.
func (b *beater) run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx).With("job", b.name)

	c := cron.New(cron.WithLogger(cronLogger{logger: logger.With("component", "cron")}))
	c.Schedule(b.schedule, cron.FuncJob(func() {
		n := b.beats.Add(1)
		logger.Info(b.message, "beat", n)
	}))
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	logger.Debug("Heartbeat stopped", "beats", b.beats.Load())
	return nil
}

// cronLogger routes cron's own messages to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
