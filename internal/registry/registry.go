package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/vk/jobgrid/internal/ctxlog"
	"github.com/vk/jobgrid/internal/grid"
	"github.com/vk/jobgrid/internal/job"
)

// Module is the interface that all job kind packages implement to be
// registered.
type Module interface {
	Register(r *Registry)
}

// Runnable is what a kind contributes to a job.
type Runnable struct {
	Action job.Action
	// Shutdown is optional.
	Shutdown job.Action
	// Forever marks kinds that serve until they are cancelled.
	Forever bool
}

// Kind builds the runnable of one job block. It decodes the block's
// arguments and fails on invalid input.
type Kind func(ctx context.Context, spec *grid.JobSpec) (*Runnable, error)

// Registry holds the registered kinds of a single application instance.
type Registry struct {
	mu      sync.RWMutex
	kinds   map[string]Kind
	metrics metrics.Registry
}

// Option configures a Registry.
type Option func(*Registry)

// WithMetrics records a timer per built job, named "job.<name>", and an
// error counter named "job.<name>.errors".
func WithMetrics(m metrics.Registry) Option {
	return func(r *Registry) { r.metrics = m }
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{kinds: make(map[string]Kind)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterKind binds name to k. Registering the same name twice is a
// programming error and panics.
func (r *Registry) RegisterKind(name string, k Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.kinds[name]; exists {
		panic(fmt.Sprintf("job kind '%s' already registered", name))
	}
	r.kinds[name] = k
}

// Kinds returns the registered kind names, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) kind(name string) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kinds[name]
	return k, ok
}

// Build creates one job per grid job, in grid order, and wires their
// requirements. Every invalid job is reported, not just the first one.
func (r *Registry) Build(ctx context.Context, g *grid.Grid) ([]job.Job, error) {
	logger := ctxlog.FromContext(ctx)

	jobs := make([]job.Job, 0, len(g.Jobs))
	byName := make(map[string]job.Job, len(g.Jobs))
	var errs []error
	for _, spec := range g.Jobs {
		j, err := r.buildOne(ctx, spec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		jobs = append(jobs, j)
		byName[spec.Name] = j
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	for _, spec := range g.Jobs {
		j := byName[spec.Name]
		for _, name := range spec.Requires {
			req, ok := byName[name]
			if !ok {
				errs = append(errs, fmt.Errorf("job %q at %s requires unknown job %q", spec.Name, spec.DefRange, name))
				continue
			}
			job.Require(j, req)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	logger.Debug("Jobs built from grid", "count", len(jobs))
	return jobs, nil
}

func (r *Registry) buildOne(ctx context.Context, spec *grid.JobSpec) (job.Job, error) {
	k, ok := r.kind(spec.Kind)
	if !ok {
		return nil, fmt.Errorf("job %q at %s: unknown kind %q (known: %v)", spec.Name, spec.DefRange, spec.Kind, r.Kinds())
	}
	runnable, err := k(ctx, spec)
	if err != nil {
		return nil, err
	}

	action := runnable.Action
	if r.metrics != nil && action != nil {
		action = timed(r.metrics, spec.Name, action)
	}

	var opts []job.Option
	if runnable.Shutdown != nil {
		opts = append(opts, job.WithShutdown(runnable.Shutdown))
	}
	if runnable.Forever || spec.Forever {
		opts = append(opts, job.WithForever())
	}
	if spec.Critical != nil {
		opts = append(opts, job.WithCritical(*spec.Critical))
	}
	return job.New(spec.Name, action, opts...), nil
}

func timed(m metrics.Registry, name string, action job.Action) job.Action {
	timer := metrics.GetOrRegisterTimer("job."+name, m)
	errs := metrics.GetOrRegisterCounter("job."+name+".errors", m)
	return func(ctx context.Context) error {
		start := time.Now()
		err := action(ctx)
		timer.UpdateSince(start)
		if err != nil {
			errs.Inc(1)
		}
		return err
	}
}
