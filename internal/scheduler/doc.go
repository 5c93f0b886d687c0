// Package scheduler is the orchestration engine. A Scheduler owns a
// dependency graph of jobs and, on every Run, drives them to completion
// while respecting their requirements.
//
// # How a run works
//
//  1. Entry jobs (no requirements) are started, each through the admission
//     window so that at most Window jobs execute at once.
//  2. The loop waits until at least one job finishes, bounded by the time
//     left before the overall deadline, and collects every other completion
//     that is already available.
//  3. All collected outcomes are classified before anything is decided. An
//     error from a critical job aborts the run; an error from a non-critical
//     job is logged and the job still counts as done.
//  4. When every finite job is done, the run succeeds. Forever jobs, such as
//     background servers, are cancelled at that point instead of awaited.
//  5. Otherwise the successors of the jobs that just finished are started as
//     soon as all of their own requirements are done, and the loop repeats.
//
// Whatever the outcome, every job then receives exactly one Shutdown call.
// Aborted runs cancel their pending jobs and wait for them before that
// broadcast.
//
// Run only returns an error for pre-flight problems (no entry job, broken
// topology). Runtime failures are reported through the boolean verdict and
// the FailedCritical, FailedTimeout and Why accessors.
package scheduler
