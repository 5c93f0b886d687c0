// Package sleep provides a job kind that waits for a fixed duration.
package sleep

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/jobgrid/internal/grid"
	"github.com/vk/jobgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the sleep kind.
type Input struct {
	Duration string `hcl:"duration" validate:"required"`
}

// Register registers the kind with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterKind("sleep", build)
}

func build(_ context.Context, spec *grid.JobSpec) (*registry.Runnable, error) {
	var input Input
	if err := spec.Decode(&input); err != nil {
		return nil, err
	}
	d, err := time.ParseDuration(input.Duration)
	if err != nil {
		return nil, fmt.Errorf("job %q: invalid duration: %w", spec.Name, err)
	}
	return &registry.Runnable{Action: func(ctx context.Context) error {
		return Sleep(ctx, d)
	}}, nil
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
