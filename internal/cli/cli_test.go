package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	out := &bytes.Buffer{}

	// --- Act ---
	cfg, exit, err := Parse([]string{"grid.hcl"}, out)

	// --- Assert ---
	require.NoError(t, err)
	require.False(t, exit)
	require.Equal(t, []string{"grid.hcl"}, cfg.GridPaths)
	require.Equal(t, "json", cfg.LogFormat)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, time.Second, cfg.ShutdownGrace)
	require.Zero(t, cfg.Timeout)
	require.Zero(t, cfg.Window)
	require.False(t, cfg.DryRun)
}

func TestParse_AllFlags(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	args := []string{
		"--grid", "a.hcl", "-g", "b",
		"--env-file", "one.env", "--env-file", "two.env",
		"--log-format", "PRETTY", "--log-level", "debug", "--log-file", "run.log",
		"--timeout", "5s", "--window", "3", "--shutdown-grace", "250ms",
		"--verbose", "--dry-run",
		"c.hcl",
	}

	// --- Act ---
	cfg, exit, err := Parse(args, &bytes.Buffer{})

	// --- Assert ---
	require.NoError(t, err)
	require.False(t, exit)
	require.Equal(t, []string{"a.hcl", "b", "c.hcl"}, cfg.GridPaths)
	require.Equal(t, []string{"one.env", "two.env"}, cfg.EnvFiles)
	require.Equal(t, "pretty", cfg.LogFormat)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "run.log", cfg.LogFile)
	require.Equal(t, 5*time.Second, cfg.Timeout)
	require.Equal(t, 3, cfg.Window)
	require.Equal(t, 250*time.Millisecond, cfg.ShutdownGrace)
	require.True(t, cfg.Verbose)
	require.True(t, cfg.DryRun)
}

func TestParse_NoPathPrintsUsage(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	out := &bytes.Buffer{}

	// --- Act ---
	cfg, exit, err := Parse(nil, out)

	// --- Assert ---
	require.NoError(t, err)
	require.True(t, exit)
	require.Nil(t, cfg)
	require.Contains(t, out.String(), "Usage:")
	require.Contains(t, out.String(), "jobgrid [options]")
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "unknown flag", args: []string{"--nope"}, wantErr: "flag provided but not defined"},
		{name: "bad log format", args: []string{"--log-format", "xml", "g.hcl"}, wantErr: "LogFormat"},
		{name: "bad log level", args: []string{"--log-level", "loud", "g.hcl"}, wantErr: "LogLevel"},
		{name: "negative window", args: []string{"--window", "-1", "g.hcl"}, wantErr: "Window"},
		{name: "negative timeout", args: []string{"--timeout", "-1s", "g.hcl"}, wantErr: "Timeout"},
		{name: "bad duration", args: []string{"--timeout", "soon", "g.hcl"}, wantErr: "invalid value"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// --- Act ---
			_, exit, err := Parse(tc.args, &bytes.Buffer{})

			// --- Assert ---
			require.False(t, exit)
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			require.Equal(t, 2, exitErr.Code)
			require.Contains(t, exitErr.Message, tc.wantErr)
		})
	}
}
