// Package fail provides a job kind that returns an error, optionally after
// a delay. It is mostly useful to exercise critical and non-critical
// failure handling from a grid file.
package fail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vk/jobgrid/internal/grid"
	"github.com/vk/jobgrid/internal/registry"
	"github.com/vk/jobgrid/modules/sleep"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the fail kind.
type Input struct {
	Message string `hcl:"message,optional"`
	After   string `hcl:"after,optional"`
}

// Register registers the kind with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterKind("fail", build)
}

func build(_ context.Context, spec *grid.JobSpec) (*registry.Runnable, error) {
	var input Input
	if err := spec.Decode(&input); err != nil {
		return nil, err
	}

	var after time.Duration
	if input.After != "" {
		d, err := time.ParseDuration(input.After)
		if err != nil {
			return nil, fmt.Errorf("job %q: invalid after: %w", spec.Name, err)
		}
		after = d
	}
	msg := input.Message
	if msg == "" {
		msg = "job failed on purpose"
	}

	return &registry.Runnable{Action: func(ctx context.Context) error {
		if err := sleep.Sleep(ctx, after); err != nil {
			return err
		}
		return errors.New(msg)
	}}, nil
}
