package dag

import (
	"sync"

	"github.com/vk/jobgrid/internal/job"
)

// Graph is a collection of jobs and their requirements, representing a DAG.
// All operations on the graph are concurrency-safe.
type Graph struct {
	// mutex protects the fields below during concurrent access.
	mutex sync.RWMutex
	// jobs keeps insertion order, which makes traversals reproducible.
	jobs []job.Job
	// members gives O(1) membership checks.
	members map[job.Job]struct{}
	// successors is the reverse of job.Requires, rebuilt by Backlinks.
	successors map[job.Job][]job.Job
}

// Pruned describes the requirements Sanitize removed from one job.
type Pruned struct {
	Job     job.Job
	Removed []job.Job
}
