package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/vk/jobgrid/internal/job"
)

// ExecutionRecord holds the start and end times of one job execution.
type ExecutionRecord struct {
	Start time.Time
	End   time.Time
	Err   error
}

// Recorder builds stock jobs that report when they start, end and shut down.
// It also tracks how many recorded jobs were running at the same time.
type Recorder struct {
	mu        sync.Mutex
	records   map[string]*ExecutionRecord
	order     []string
	shutdowns map[string]int
	running   int
	peak      int
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		records:   make(map[string]*ExecutionRecord),
		shutdowns: make(map[string]int),
	}
}

// Sleeper returns a job that sleeps for d, or until its context is done.
func (r *Recorder) Sleeper(label string, d time.Duration, opts ...job.Option) *job.Stock {
	return r.Job(label, func(ctx context.Context) error {
		select {
		case <-time.After(d):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}, opts...)
}

// Failer returns a job that sleeps for d and then returns err.
func (r *Recorder) Failer(label string, d time.Duration, err error, opts ...job.Option) *job.Stock {
	return r.Job(label, func(ctx context.Context) error {
		select {
		case <-time.After(d):
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}, opts...)
}

// Blocker returns a job that only returns once its context is done.
func (r *Recorder) Blocker(label string, opts ...job.Option) *job.Stock {
	return r.Job(label, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, opts...)
}

// Job wraps an arbitrary action with recording.
func (r *Recorder) Job(label string, action job.Action, opts ...job.Option) *job.Stock {
	tracked, shutdown := r.Wrap(label, action)
	all := append([]job.Option{job.WithShutdown(shutdown)}, opts...)
	return job.New(label, tracked, all...)
}

// Wrap returns a recording version of action and a shutdown hook that
// counts its calls, for callers assembling jobs themselves.
func (r *Recorder) Wrap(label string, action job.Action) (run, shutdown job.Action) {
	run = func(ctx context.Context) error {
		r.begin(label)
		err := action(ctx)
		r.end(label, err)
		return err
	}
	shutdown = func(context.Context) error {
		r.shutdown(label)
		return nil
	}
	return run, shutdown
}

// Record returns the execution record of label, if it ever started.
func (r *Recorder) Record(label string) (ExecutionRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[label]
	if !ok {
		return ExecutionRecord{}, false
	}
	return *rec, true
}

// Started reports whether label ever started.
func (r *Recorder) Started(label string) bool {
	_, ok := r.Record(label)
	return ok
}

// Order returns labels in the order their executions started.
func (r *Recorder) Order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Shutdowns returns how many times the shutdown hook of label ran.
func (r *Recorder) Shutdowns(label string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shutdowns[label]
}

// Peak returns the highest number of recorded jobs running at once.
func (r *Recorder) Peak() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peak
}

// Reset forgets everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = make(map[string]*ExecutionRecord)
	r.shutdowns = make(map[string]int)
	r.order = nil
	r.running, r.peak = 0, 0
}

func (r *Recorder) begin(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[label] = &ExecutionRecord{Start: time.Now()}
	r.order = append(r.order, label)
	r.running++
	if r.running > r.peak {
		r.peak = r.running
	}
}

func (r *Recorder) end(label string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[label]; ok {
		rec.End = time.Now()
		rec.Err = err
	}
	r.running--
}

func (r *Recorder) shutdown(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shutdowns[label]++
}
