package scheduler

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/vk/jobgrid/internal/job"
)

// Why explains the verdict of the latest run, or returns "FINE".
func (s *Scheduler) Why() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.failedTimeout > 0:
		return fmt.Sprintf("TIMED OUT after %s", s.failedTimeout)
	case s.failedCritical:
		return "a CRITICAL job has raised an error"
	case s.outcome == Stalled:
		return "STALLED: no job in flight with finite jobs left"
	case s.canceled != nil:
		return fmt.Sprintf("CANCELED: %v", s.canceled)
	default:
		return "FINE"
	}
}

// String summarizes job states, e.g.
// "Scheduler with 2 done + 1 ongoing + 3 idle = 6 job(s)".
func (s *Scheduler) String() string {
	var nbDone, nbOngoing int
	jobs := s.graph.Jobs()
	for _, j := range jobs {
		switch {
		case j.IsDone():
			nbDone++
		case j.IsRunning():
			nbOngoing++
		}
	}
	nbIdle := len(jobs) - nbDone - nbOngoing
	return fmt.Sprintf("Scheduler with %d done + %d ongoing + %d idle = %d job(s)",
		nbDone, nbOngoing, nbIdle, len(jobs))
}

// List writes one line per job in topological order: id, status flags,
// label and the ids of its requirements. It fails when the graph cannot be
// scanned.
//
// Flags: D done, R running, I idle; ! critical; ~ forever; E raised.
func (s *Scheduler) List(w io.Writer) error {
	order, err := s.graph.TopologicalOrder()
	if err != nil {
		return err
	}
	ids, err := s.graph.IDs()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, j := range order {
		reqs := make([]string, 0, len(j.Requires()))
		for _, req := range j.Requires() {
			reqs = append(reqs, ids[req])
		}
		line := fmt.Sprintf("%s\t%s\t%s", ids[j], flags(j), j.String())
		if len(reqs) > 0 {
			line += "\trequires={" + strings.Join(reqs, ",") + "}"
		}
		fmt.Fprintln(tw, line)
	}
	return tw.Flush()
}

// Debrief writes a report aimed at failed runs: the verdict, a summary of
// job states, the job list, and the errors raised by critical jobs followed
// by those raised by non-critical ones.
func (s *Scheduler) Debrief(w io.Writer) error {
	order, err := s.graph.TopologicalOrder()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "----- %s\n", s.Why())
	fmt.Fprintf(w, "%s\n", s.String())
	if err := s.List(w); err != nil {
		return err
	}

	var critical, nonCritical []job.Job
	for _, j := range order {
		if j.Err() == nil {
			continue
		}
		if j.Critical() {
			critical = append(critical, j)
		} else {
			nonCritical = append(nonCritical, j)
		}
	}
	if len(critical)+len(nonCritical) == 0 {
		return nil
	}

	fmt.Fprintf(w, "===== %d job(s) with an error, including %d critical\n",
		len(critical)+len(nonCritical), len(critical))
	for _, j := range critical {
		fmt.Fprintf(w, "critical: %s: %v\n", j, j.Err())
	}
	for _, j := range nonCritical {
		fmt.Fprintf(w, "non-critical: %s: %v\n", j, j.Err())
	}
	return nil
}

func flags(j job.Job) string {
	var b strings.Builder
	switch {
	case j.IsDone():
		b.WriteByte('D')
	case j.IsRunning():
		b.WriteByte('R')
	default:
		b.WriteByte('I')
	}
	if j.Critical() {
		b.WriteByte('!')
	} else {
		b.WriteByte(' ')
	}
	if j.Forever() {
		b.WriteByte('~')
	} else {
		b.WriteByte(' ')
	}
	if j.Err() != nil {
		b.WriteByte('E')
	} else {
		b.WriteByte(' ')
	}
	return b.String()
}
