// Package app contains the core application logic. It defines the main App
// struct, its configuration, and the execution lifecycle of one invocation:
// load the grid, build the jobs, run them through the scheduler and report.
// It is decoupled from any specific entrypoint like a CLI.
package app
