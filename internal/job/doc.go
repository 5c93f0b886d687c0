// Package job defines the capability contract of a schedulable unit of work
// and ships a stock implementation built from a plain action function.
//
// A Job knows three things the scheduler cares about: which other jobs it
// requires, whether its failure is critical to the whole run, and whether it
// runs forever (a background service that nobody waits for). Everything else
// the scheduler needs to track, such as successors, marks and task handles, is
// kept in the scheduler's own side tables and never stored on the job.
//
// Implementations must be comparable, which in practice means pointer types:
// job values are used as map keys and compared with ==.
package job
