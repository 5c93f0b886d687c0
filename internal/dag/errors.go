package dag

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vk/jobgrid/internal/job"
)

var (
	// ErrCycle means the requires relationship loops back on itself.
	ErrCycle = errors.New("requires graph contains a cycle")
	// ErrUnreachable means some jobs require jobs that are not in the graph,
	// so they can never become eligible.
	ErrUnreachable = errors.New("jobs are not reachable from any entry job")
)

// ValidationError reports the jobs a topological scan could not mark.
type ValidationError struct {
	// Cause is ErrCycle or ErrUnreachable.
	Cause error
	// Stuck lists the unmarked jobs, in insertion order.
	Stuck []job.Job
}

func (e *ValidationError) Error() string {
	labels := make([]string, 0, len(e.Stuck))
	for _, j := range e.Stuck {
		labels = append(labels, j.String())
	}
	return fmt.Sprintf("graph could not be scanned: %v (%d job(s) left: %s)",
		e.Cause, len(e.Stuck), strings.Join(labels, ", "))
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}
