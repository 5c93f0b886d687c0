package print

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/vk/jobgrid/internal/ctxlog"
	"github.com/vk/jobgrid/internal/grid"
	"github.com/vk/jobgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct {
	// Out receives the printed lines. Nil means standard output.
	Out io.Writer

	mu sync.Mutex
}

// Input defines the arguments for the print kind.
type Input struct {
	Message string            `hcl:"message"`
	Values  map[string]string `hcl:"values,optional"`
}

// Register registers the kind with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterKind("print", m.build)
}

func (m *Module) build(_ context.Context, spec *grid.JobSpec) (*registry.Runnable, error) {
	input := new(Input)
	if err := spec.Decode(input); err != nil {
		return nil, err
	}
	return &registry.Runnable{
		Action: func(ctx context.Context) error {
			ctxlog.FromContext(ctx).Debug("Printing input", "job", spec.Name)
			return m.print(input)
		},
	}, nil
}

// print writes the message and the sorted values as one block, so lines of
// concurrent jobs never interleave.
func (m *Module) print(input *Input) error {
	out := m.Out
	if out == nil {
		out = os.Stdout
	}

	keys := make([]string, 0, len(input.Values))
	for k := range input.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := fmt.Fprintln(out, input.Message); err != nil {
		return err
	}
	for _, k := range keys {
		if _, err := fmt.Fprintf(out, "      %s = %q\n", k, input.Values[k]); err != nil {
			return err
		}
	}
	return nil
}
