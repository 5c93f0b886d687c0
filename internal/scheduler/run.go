package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vk/jobgrid/internal/ctxlog"
	"github.com/vk/jobgrid/internal/job"
	"github.com/vk/jobgrid/internal/window"
)

// errDeadline is the internal signal for an expired run deadline.
var errDeadline = errors.New("run deadline expired")

// task is the scheduler-side handle of one started job.
type task struct {
	cancel context.CancelFunc
	done   bool
	err    error
}

// completion is what a job goroutine reports when it returns.
type completion struct {
	job job.Job
	err error
}

// run holds the bookkeeping of a single orchestration.
type run struct {
	s      *Scheduler
	ctx    context.Context
	logger *slog.Logger
	window *window.Window

	tasks   map[job.Job]*task
	pending map[job.Job]*task
	results chan completion
}

// Run orchestrates the jobs and returns true when every finite job is done,
// no critical job failed and the timeout, if any, did not expire.
//
// The returned error is non-nil when the run could not start at all
// (ErrNoEntryJobs, a *dag.ValidationError, or ErrAlreadyRunning), or when
// the loop finds nothing in flight with finite jobs left (ErrStalled).
func (s *Scheduler) Run(ctx context.Context, opts RunOptions) (bool, error) {
	if !s.running.CompareAndSwap(false, true) {
		return false, ErrAlreadyRunning
	}
	defer s.running.Store(false)

	s.reset(opts.Timeout)

	entries := s.graph.EntryJobs()
	if len(entries) == 0 {
		s.finish(Idle, 0, nil)
		return false, ErrNoEntryJobs
	}
	if err := s.graph.RainCheck(); err != nil {
		s.finish(Idle, 0, nil)
		return false, fmt.Errorf("cannot orchestrate: %w", err)
	}
	s.graph.Backlinks()

	jobs := s.graph.Jobs()
	finite := 0
	for _, j := range jobs {
		if !j.Forever() {
			finite++
		}
	}

	runCtx, cancel := context.WithCancel(ctxlog.WithLogger(ctx, s.logger))
	defer cancel()

	r := &run{
		s:       s,
		ctx:     runCtx,
		logger:  s.logger,
		window:  window.New(opts.Window),
		tasks:   make(map[job.Job]*task, len(jobs)),
		pending: make(map[job.Job]*task, len(jobs)),
		// Every job starts at most once per run, so no sender ever blocks.
		results: make(chan completion, len(jobs)),
	}

	r.logger.Debug("entering run", "jobs", len(jobs), "finite", finite,
		"timeout", opts.Timeout, "window", r.window.Capacity())

	for _, j := range entries {
		r.start(j)
	}

	nbDone := 0
	for {
		if len(r.pending) == 0 {
			r.logger.Error("no job in flight", "done", nbDone, "finite", finite)
			r.shutdown()
			s.finish(Stalled, 0, nil)
			return false, ErrStalled
		}

		batch, err := r.wait(ctx)
		if err != nil {
			r.abort()
			r.shutdown()
			if errors.Is(err, errDeadline) {
				r.logger.Warn("TIMEOUT occurred", "timeout", opts.Timeout)
				s.finish(FailedTimeout, opts.Timeout, nil)
			} else {
				r.logger.Warn("run canceled by caller", "error", err)
				s.finish(Canceled, 0, err)
			}
			return false, nil
		}

		// Classify every outcome of this iteration before deciding anything.
		critical := false
		for _, c := range batch {
			if c.err == nil {
				r.feedback(slog.LevelDebug, "DONE", c.job)
				continue
			}
			if c.job.Critical() {
				critical = true
				r.logger.Error("EXCEPTION occurred on critical job", "job", c.job.String(), "error", c.err)
			} else {
				r.logger.Warn("EXCEPTION occurred on non-critical job", "job", c.job.String(), "error", c.err)
			}
		}

		if critical {
			r.abort()
			r.shutdown()
			r.logger.Warn("emergency exit upon error in critical job")
			s.finish(FailedCritical, 0, nil)
			return false, nil
		}

		for _, c := range batch {
			if !c.job.Forever() {
				nbDone++
			}
		}
		if nbDone == finite {
			if len(r.pending) > 0 {
				r.logger.Debug("tidying forever jobs", "count", len(r.pending))
			}
			r.abort()
			r.shutdown()
			s.finish(Succeeded, 0, nil)
			return true, nil
		}

		for _, candidate := range r.candidates(batch) {
			r.start(candidate)
		}
	}
}

// start launches j in its own goroutine, gated by the admission window.
func (r *run) start(j job.Job) {
	taskCtx, cancel := context.WithCancel(r.ctx)
	t := &task{cancel: cancel}
	r.tasks[j] = t
	r.pending[j] = t
	r.feedback(slog.LevelDebug, "STARTING", j)

	go func() {
		defer cancel()
		err := r.window.Do(taskCtx, func(ctx context.Context) error {
			return runJob(ctx, j)
		})
		r.results <- completion{job: j, err: err}
	}()
}

// runJob shields the scheduler from a panicking job.
func runJob(ctx context.Context, j job.Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job %s panicked: %v", j, rec)
		}
	}()
	return j.Run(ctx)
}

// wait blocks until at least one job completes, then drains every other
// completion already available. It fails when the deadline expires first or
// when the caller's context ends.
func (r *run) wait(ctx context.Context) ([]completion, error) {
	var expired <-chan time.Time
	if left, ok := r.s.remaining(); ok {
		timer := time.NewTimer(max(left, 0))
		defer timer.Stop()
		expired = timer.C
	}

	var batch []completion
	select {
	case c := <-r.results:
		batch = append(batch, r.record(c))
	case <-expired:
		return nil, errDeadline
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	for {
		select {
		case c := <-r.results:
			batch = append(batch, r.record(c))
		default:
			return batch, nil
		}
	}
}

// record marks the task of c as done.
func (r *run) record(c completion) completion {
	if t, ok := r.tasks[c.job]; ok {
		t.done = true
		t.err = c.err
	}
	delete(r.pending, c.job)
	return c
}

// candidates returns the successors of the batch whose requirements are now
// all done and that were not started yet.
func (r *run) candidates(batch []completion) []job.Job {
	seen := make(map[job.Job]bool)
	var ready []job.Job
	for _, c := range batch {
		for _, next := range r.s.graph.Successors(c.job) {
			if seen[next] {
				continue
			}
			seen[next] = true
			if _, started := r.tasks[next]; started {
				continue
			}
			if r.requirementsDone(next) {
				ready = append(ready, next)
			}
		}
	}
	return ready
}

func (r *run) requirementsDone(j job.Job) bool {
	for _, req := range j.Requires() {
		t, ok := r.tasks[req]
		if !ok || !t.done {
			return false
		}
	}
	return true
}

// abort cancels every pending task and waits, without any timeout, until
// each of them has reported back.
func (r *run) abort() {
	if len(r.pending) == 0 {
		return
	}
	for j, t := range r.pending {
		r.feedback(slog.LevelDebug, "ABORTING", j)
		t.cancel()
	}
	for len(r.pending) > 0 {
		r.record(<-r.results)
	}
}

// feedback logs a lifecycle event for j. Verbose schedulers log at INFO.
func (r *run) feedback(level slog.Level, state string, j job.Job) {
	if r.s.verbose && level < slog.LevelInfo {
		level = slog.LevelInfo
	}
	r.logger.Log(r.ctx, level, state, "job", j.String(),
		"critical", j.Critical(), "forever", j.Forever())
}
