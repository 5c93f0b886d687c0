package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/vk/jobgrid/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// listFlag collects every occurrence of a repeatable flag.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("jobgrid", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
jobgrid - Runs a grid of dependent jobs with bounded concurrency.

Usage:
  jobgrid [options] [GRID_PATH...]

Arguments:
  GRID_PATH
    Path to a .hcl file or a directory containing .hcl files. May be repeated.

Options:
`)
		flagSet.PrintDefaults()
	}

	var grids, envFiles listFlag
	flagSet.Var(&grids, "grid", "Path to a grid file or directory. May be repeated.")
	flagSet.Var(&grids, "g", "Path to a grid file or directory (shorthand).")
	flagSet.Var(&envFiles, "env-file", "Dotenv file exposed to grids as env.*. May be repeated.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text', 'json' or 'pretty'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	logFileFlag := flagSet.String("log-file", "", "Also write JSON logs to this rotated file.")
	timeoutFlag := flagSet.Duration("timeout", 0, "Overall run timeout. 0 keeps the grid's setting.")
	windowFlag := flagSet.Int("window", 0, "Maximum number of jobs running at once. 0 keeps the grid's setting.")
	graceFlag := flagSet.Duration("shutdown-grace", time.Second, "Time allowed for job shutdowns once the run ends.")
	verboseFlag := flagSet.Bool("verbose", false, "Log every job transition and print job timings.")
	dryRunFlag := flagSet.Bool("dry-run", false, "Validate the grid and list its jobs without running them.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	paths := append([]string(grids), flagSet.Args()...)
	slog.Debug("Grid paths determined.", "paths", paths)

	if len(paths) == 0 {
		slog.Debug("No grid path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	config, err := app.NewConfig(app.Config{
		GridPaths:     paths,
		EnvFiles:      envFiles,
		LogFormat:     strings.ToLower(*logFormatFlag),
		LogLevel:      strings.ToLower(*logLevelFlag),
		LogFile:       *logFileFlag,
		Timeout:       *timeoutFlag,
		Window:        *windowFlag,
		ShutdownGrace: *graceFlag,
		Verbose:       *verboseFlag,
		DryRun:        *dryRunFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
