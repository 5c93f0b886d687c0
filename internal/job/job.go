package job

import (
	"context"
	"fmt"
)

// Job is the contract the scheduler relies on.
type Job interface {
	fmt.Stringer

	// Requires returns the jobs that must be done before this one may start.
	Requires() []Job
	// SetRequires replaces the requirement set.
	SetRequires(reqs ...Job)

	// Critical reports whether an error from Run aborts the whole run.
	Critical() bool
	// Forever reports whether the job is left out of the completion count.
	Forever() bool

	// Run performs the job's action and blocks until it is over. A non-nil
	// error means the job raised. Run must return promptly once ctx is done.
	Run(ctx context.Context) error
	// Shutdown is called exactly once at the end of every scheduler run,
	// including for jobs that never ran.
	Shutdown(ctx context.Context) error

	IsRunning() bool
	IsDone() bool
	// Err returns the error of the last run, or nil.
	Err() error
}

// Require adds reqs to the requirements of j, skipping nil values and
// requirements that are already present.
func Require(j Job, reqs ...Job) {
	current := j.Requires()
	merged := make([]Job, 0, len(current)+len(reqs))
	merged = append(merged, current...)
	for _, r := range reqs {
		if r == nil || contains(merged, r) {
			continue
		}
		merged = append(merged, r)
	}
	j.SetRequires(merged...)
}

// Sequence makes every job require the one before it and returns the jobs
// unchanged, so it can be spliced into a scheduler's job list. The first job
// keeps whatever requirements it already had.
func Sequence(jobs ...Job) []Job {
	for i := 1; i < len(jobs); i++ {
		Require(jobs[i], jobs[i-1])
	}
	return jobs
}

func contains(jobs []Job, j Job) bool {
	for _, candidate := range jobs {
		if candidate == j {
			return true
		}
	}
	return false
}
