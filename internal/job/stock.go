package job

import (
	"context"
	"fmt"
	"sync"
)

// Action is the body of a stock job.
type Action func(ctx context.Context) error

// Option configures a stock job.
type Option func(*Stock)

// WithCritical sets the critical flag. Stock jobs are critical by default.
func WithCritical(critical bool) Option {
	return func(s *Stock) { s.critical = critical }
}

// WithForever marks the job as a background job nobody waits for.
func WithForever() Option {
	return func(s *Stock) { s.forever = true }
}

// WithRequires sets the initial requirements.
func WithRequires(reqs ...Job) Option {
	return func(s *Stock) { s.requires = dedup(reqs) }
}

// WithShutdown installs a teardown hook called by Shutdown.
func WithShutdown(fn Action) Option {
	return func(s *Stock) { s.shutdown = fn }
}

// Stock is a Job built from an Action. It tracks its own running/done/error
// state and may be run again; each Run starts from a clean state.
type Stock struct {
	label    string
	action   Action
	shutdown Action
	critical bool
	forever  bool

	mu       sync.Mutex
	requires []Job
	running  bool
	done     bool
	err      error
}

// New creates a stock job. A nil action completes immediately.
func New(label string, action Action, opts ...Option) *Stock {
	s := &Stock{
		label:    label,
		action:   action,
		critical: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Stock) String() string { return s.label }

func (s *Stock) Critical() bool { return s.critical }

func (s *Stock) Forever() bool { return s.forever }

func (s *Stock) Requires() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, len(s.requires))
	copy(out, s.requires)
	return out
}

func (s *Stock) SetRequires(reqs ...Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requires = dedup(reqs)
}

// Run executes the action and records the outcome. A panicking action is
// recorded and returned as an error.
func (s *Stock) Run(ctx context.Context) (err error) {
	s.mu.Lock()
	s.running, s.done, s.err = true, false, nil
	s.mu.Unlock()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job %s panicked: %v", s.label, rec)
		}
		s.mu.Lock()
		s.running, s.done, s.err = false, true, err
		s.mu.Unlock()
	}()

	if s.action != nil {
		err = s.action(ctx)
	}
	return err
}

// Shutdown runs the teardown hook, if any.
func (s *Stock) Shutdown(ctx context.Context) error {
	if s.shutdown == nil {
		return nil
	}
	return s.shutdown(ctx)
}

func (s *Stock) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Stock) IsDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Stock) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func dedup(reqs []Job) []Job {
	out := make([]Job, 0, len(reqs))
	for _, r := range reqs {
		if r == nil || contains(out, r) {
			continue
		}
		out = append(out, r)
	}
	return out
}
