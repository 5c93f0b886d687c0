package dag

import (
	"fmt"
	"strconv"

	"github.com/vk/jobgrid/internal/job"
)

// New creates a graph holding the given jobs.
func New(jobs ...job.Job) *Graph {
	g := &Graph{
		members:    make(map[job.Job]struct{}),
		successors: make(map[job.Job][]job.Job),
	}
	g.Add(jobs...)
	return g
}

// Add inserts jobs into the graph. Nil jobs and jobs already present are
// ignored, so the graph behaves like a set.
func (g *Graph) Add(jobs ...job.Job) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	for _, j := range jobs {
		if j == nil {
			continue
		}
		if _, ok := g.members[j]; ok {
			continue
		}
		g.members[j] = struct{}{}
		g.jobs = append(g.jobs, j)
	}
}

// Len returns the number of jobs in the graph.
func (g *Graph) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.jobs)
}

// Jobs returns the jobs in insertion order.
func (g *Graph) Jobs() []job.Job {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	out := make([]job.Job, len(g.jobs))
	copy(out, g.jobs)
	return out
}

// Contains reports whether j belongs to the graph.
func (g *Graph) Contains(j job.Job) bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	_, ok := g.members[j]
	return ok
}

// EntryJobs returns the jobs that have no requirement at all.
func (g *Graph) EntryJobs() []job.Job {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	var entries []job.Job
	for _, j := range g.jobs {
		if len(j.Requires()) == 0 {
			entries = append(entries, j)
		}
	}
	return entries
}

// TopologicalOrder scans the graph from the entry jobs forward and returns
// every job after all of its requirements. It fails with a *ValidationError
// when some jobs can never be marked.
func (g *Graph) TopologicalOrder() ([]job.Job, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	marked := make(map[job.Job]bool, len(g.jobs))
	order := make([]job.Job, 0, len(g.jobs))

	for len(order) < len(g.jobs) {
		progress := false
		for _, j := range g.jobs {
			if marked[j] || !allMarked(j.Requires(), marked) {
				continue
			}
			marked[j] = true
			order = append(order, j)
			progress = true
		}
		if !progress {
			return nil, g.stuckError(marked)
		}
	}
	return order, nil
}

// RainCheck validates the topology without running anything.
func (g *Graph) RainCheck() error {
	_, err := g.TopologicalOrder()
	return err
}

// Backlinks rebuilds the successor side table from the requirements. Only
// edges between members of the graph are recorded.
func (g *Graph) Backlinks() {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.successors = make(map[job.Job][]job.Job, len(g.jobs))
	for _, j := range g.jobs {
		for _, req := range j.Requires() {
			if _, ok := g.members[req]; !ok {
				continue
			}
			g.successors[req] = append(g.successors[req], j)
		}
	}
}

// Successors returns the jobs that require j, as of the last Backlinks call.
func (g *Graph) Successors(j job.Job) []job.Job {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	succ := g.successors[j]
	out := make([]job.Job, len(succ))
	copy(out, succ)
	return out
}

// Sanitize drops every requirement, and every cached successor, pointing
// outside the graph. It returns one entry per job that lost requirements;
// an empty result means the graph was already closed.
func (g *Graph) Sanitize() []Pruned {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	var pruned []Pruned
	for _, j := range g.jobs {
		reqs := j.Requires()
		kept := make([]job.Job, 0, len(reqs))
		var removed []job.Job
		for _, req := range reqs {
			if _, ok := g.members[req]; ok {
				kept = append(kept, req)
			} else {
				removed = append(removed, req)
			}
		}
		if len(removed) > 0 {
			j.SetRequires(kept...)
			pruned = append(pruned, Pruned{Job: j, Removed: removed})
		}
	}

	for from, succ := range g.successors {
		if _, ok := g.members[from]; !ok {
			delete(g.successors, from)
			continue
		}
		kept := succ[:0]
		for _, s := range succ {
			if _, ok := g.members[s]; ok {
				kept = append(kept, s)
			}
		}
		g.successors[from] = kept
	}
	return pruned
}

// IDs assigns every job a zero-padded sequence number following the
// topological order, e.g. "01".."12" for twelve jobs.
func (g *Graph) IDs() (map[job.Job]string, error) {
	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	width := len(strconv.Itoa(len(order)))
	ids := make(map[job.Job]string, len(order))
	for i, j := range order {
		ids[j] = fmt.Sprintf("%0*d", width, i+1)
	}
	return ids, nil
}

// stuckError classifies why the unmarked jobs could not be scanned. Must be
// called with the read lock held.
func (g *Graph) stuckError(marked map[job.Job]bool) error {
	var stuck []job.Job
	cause := ErrCycle
	for _, j := range g.jobs {
		if marked[j] {
			continue
		}
		stuck = append(stuck, j)
		for _, req := range j.Requires() {
			if _, ok := g.members[req]; !ok {
				cause = ErrUnreachable
			}
		}
	}
	return &ValidationError{Cause: cause, Stuck: stuck}
}

func allMarked(reqs []job.Job, marked map[job.Job]bool) bool {
	for _, r := range reqs {
		if !marked[r] {
			return false
		}
	}
	return true
}
