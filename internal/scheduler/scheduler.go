package scheduler

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vk/jobgrid/internal/ctxlog"
	"github.com/vk/jobgrid/internal/dag"
	"github.com/vk/jobgrid/internal/job"
)

var (
	// ErrNoEntryJobs is returned by Run when no job is free of requirements.
	ErrNoEntryJobs = errors.New("no entry points found - cannot orchestrate")
	// ErrAlreadyRunning is returned by Run when another Run is in progress.
	ErrAlreadyRunning = errors.New("scheduler is already running")
	// ErrStalled means nothing is in flight although finite jobs remain. A
	// graph that passed RainCheck never gets there.
	ErrStalled = errors.New("scheduler stalled with no job in flight")
)

// DefaultShutdownGrace bounds the shutdown broadcast when the run deadline
// has already passed.
const DefaultShutdownGrace = time.Second

// Outcome is the state of the latest run.
type Outcome int

const (
	// Idle means Run was never called.
	Idle Outcome = iota
	// Running means a run is in progress.
	Running
	// Succeeded means every finite job is done and nothing critical failed.
	Succeeded
	// FailedCritical means a critical job returned an error.
	FailedCritical
	// FailedTimeout means the overall deadline expired.
	FailedTimeout
	// Canceled means the caller's context ended the run.
	Canceled
	// Stalled means no job was left in flight before every finite job was
	// done.
	Stalled
)

func (o Outcome) String() string {
	switch o {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case FailedCritical:
		return "failed-critical"
	case FailedTimeout:
		return "failed-timeout"
	case Canceled:
		return "canceled"
	case Stalled:
		return "stalled"
	default:
		return "unknown"
	}
}

// RunOptions tunes a single run.
type RunOptions struct {
	// Timeout applies to the whole run. Zero means no timeout.
	Timeout time.Duration
	// Window is the maximum number of jobs running at once. Zero means
	// unlimited.
	Window int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger injects the logger used for run feedback. It is also placed in
// the context handed to every job.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithVerbose promotes per-job lifecycle lines from DEBUG to INFO.
func WithVerbose(verbose bool) Option {
	return func(s *Scheduler) { s.verbose = verbose }
}

// WithLabel names the scheduler in its log lines.
func WithLabel(label string) Option {
	return func(s *Scheduler) { s.label = label }
}

// WithShutdownGrace sets how long the shutdown broadcast may take once the
// run deadline is already behind us.
func WithShutdownGrace(d time.Duration) Option {
	return func(s *Scheduler) { s.shutdownGrace = d }
}

// Scheduler orchestrates a set of jobs along their requirements.
type Scheduler struct {
	graph         *dag.Graph
	logger        *slog.Logger
	verbose       bool
	label         string
	shutdownGrace time.Duration

	running atomic.Bool

	// mu guards the per-run results read by the accessors.
	mu             sync.Mutex
	outcome        Outcome
	failedCritical bool
	failedTimeout  time.Duration
	canceled       error
	expiration     time.Time
}

// New creates a scheduler over jobs.
func New(jobs []job.Job, opts ...Option) *Scheduler {
	s := &Scheduler{
		graph:         dag.New(jobs...),
		logger:        ctxlog.Discard(),
		shutdownGrace: DefaultShutdownGrace,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.label != "" {
		s.logger = s.logger.With("scheduler", s.label)
	}
	return s
}

// Add inserts more jobs; jobs already present are ignored.
func (s *Scheduler) Add(jobs ...job.Job) {
	s.graph.Add(jobs...)
}

// Len returns the number of jobs.
func (s *Scheduler) Len() int {
	return s.graph.Len()
}

// Jobs returns the jobs in insertion order.
func (s *Scheduler) Jobs() []job.Job {
	return s.graph.Jobs()
}

// Outcome returns the state of the latest run.
func (s *Scheduler) Outcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// FailedCritical reports whether the latest run was aborted by a critical job.
func (s *Scheduler) FailedCritical() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failedCritical
}

// FailedTimeout returns the timeout that expired during the latest run, or
// zero if the run did not time out.
func (s *Scheduler) FailedTimeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failedTimeout
}

// TopologicalOrder returns the jobs, requirements first.
func (s *Scheduler) TopologicalOrder() ([]job.Job, error) {
	return s.graph.TopologicalOrder()
}

// RainCheck reports whether the graph is free of cycles and of jobs that can
// never be reached. Nothing is run.
func (s *Scheduler) RainCheck() bool {
	if err := s.graph.RainCheck(); err != nil {
		s.logger.Debug("rain check failed", "error", err)
		return false
	}
	return true
}

// Sanitize removes requirements pointing outside the scheduler and reports
// whether anything was removed.
func (s *Scheduler) Sanitize() bool {
	pruned := s.graph.Sanitize()
	for _, p := range pruned {
		s.logger.Warn("job has had requirements removed", "job", p.Job.String(), "removed", len(p.Removed))
	}
	return len(pruned) > 0
}

// reset clears the results of a previous run.
func (s *Scheduler) reset(timeout time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outcome = Running
	s.failedCritical = false
	s.failedTimeout = 0
	s.canceled = nil
	s.expiration = time.Time{}
	if timeout > 0 {
		s.expiration = time.Now().Add(timeout)
	}
}

// finish records the verdict of a run.
func (s *Scheduler) finish(outcome Outcome, timeout time.Duration, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outcome = outcome
	switch outcome {
	case FailedCritical:
		s.failedCritical = true
	case FailedTimeout:
		s.failedTimeout = timeout
	case Canceled:
		s.canceled = cause
	}
}

// remaining returns the time left before the deadline and whether there is
// a deadline at all.
func (s *Scheduler) remaining() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expiration.IsZero() {
		return 0, false
	}
	return time.Until(s.expiration), true
}
