// Package testutil holds shared helpers for tests: a thread-safe log sink
// and a Recorder that builds jobs whose executions can be inspected
// afterwards.
package testutil
