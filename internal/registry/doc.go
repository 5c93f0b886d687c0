// Package registry maps the job kinds used in grid files to the Go code that
// implements them.
//
// Modules register their kinds at startup. Build then turns a loaded grid
// into stock jobs: it asks each kind for a runnable, applies the flags of the
// job block and resolves the requires lists by job name.
package registry
