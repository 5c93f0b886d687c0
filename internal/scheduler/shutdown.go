package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/jobgrid/internal/job"
)

// shutdown sends Shutdown to every job concurrently, once. The wait is
// bounded by the time left before the run deadline, or by the shutdown grace
// period when that deadline has already passed. Hooks that do not return in
// time are reported and left behind with a cancelled context.
func (r *run) shutdown() {
	r.logger.Debug("scheduler is shutting down...")

	// Hooks run even when the caller's context is already done.
	ctx := context.WithoutCancel(r.ctx)
	cancel := func() {}
	if left, ok := r.s.remaining(); ok {
		if left <= 0 {
			left = r.s.shutdownGrace
		}
		ctx, cancel = context.WithTimeout(ctx, left)
	}
	defer cancel()

	jobs := r.s.graph.Jobs()
	type outcome struct {
		job job.Job
		err error
	}
	results := make(chan outcome, len(jobs))
	for _, j := range jobs {
		go func(j job.Job) {
			results <- outcome{job: j, err: shutdownJob(ctx, j)}
		}(j)
	}

	started := time.Now()
	for remaining := len(jobs); remaining > 0; remaining-- {
		select {
		case o := <-results:
			if o.err != nil {
				r.logger.Warn("shutdown hook returned an error", "job", o.job.String(), "error", o.err)
			}
		case <-ctx.Done():
			r.logger.Warn(fmt.Sprintf("%d/%d shutdown hooks have not returned within timeout", remaining, len(jobs)),
				"waited", time.Since(started))
			return
		}
	}
}

func shutdownJob(ctx context.Context, j job.Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("shutdown of %s panicked: %v", j, rec)
		}
	}()
	return j.Shutdown(ctx)
}
