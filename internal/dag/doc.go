// Package dag holds the dependency graph of a scheduler: a set of jobs and
// the "requires" edges between them.
//
// The graph never annotates the jobs it holds. Marks used during traversal
// are local to each call, and the reverse edges ("successors") live in a side
// table rebuilt by Backlinks at the start of every run.
//
// Validation uses fixed-point marking rather than a depth-first search: a job
// is marked once all of its requirements are marked, and a pass that marks
// nothing while jobs remain unmarked means the graph is broken. The order in
// which jobs get marked is the topological order reported by the package; it
// depends only on the graph structure and on insertion order.
package dag
