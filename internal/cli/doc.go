// Package cli parses command-line arguments into an app.Config and carries
// process exit codes back to main through ExitError.
package cli
