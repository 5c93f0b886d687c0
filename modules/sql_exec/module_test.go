package sql_exec

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/jobgrid/internal/grid"
	"github.com/vk/jobgrid/internal/registry"
)

func countRows(t *testing.T, dsn string) int {
	t.Helper()
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM items").Scan(&n))
	return n
}

func TestSQL_RunsStatementsFromGrid(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dsn := filepath.Join(t.TempDir(), "jobs.db")
	r := registry.New()
	(&Module{}).Register(r)
	g, err := grid.NewLoader(grid.WithEnv(map[string]string{"DB": dsn})).LoadSource("s.hcl", []byte(`
job "sql" "seed" {
  arguments {
    driver = "sqlite"
    dsn    = env.DB
    statements = [
      "CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)",
      "INSERT INTO items (name) VALUES ('a'), ('b')",
    ]
  }
}`))
	require.NoError(t, err)
	jobs, err := r.Build(context.Background(), g)
	require.NoError(t, err)

	// --- Act ---
	err = jobs[0].Run(context.Background())

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, 2, countRows(t, dsn))
}

func TestExec_RollsBackOnFailure(t *testing.T) {
	t.Parallel()

	dsn := filepath.Join(t.TempDir(), "jobs.db")
	require.NoError(t, Exec(context.Background(), "sqlite", dsn, "CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)"))

	err := Exec(context.Background(), "sqlite", dsn,
		"INSERT INTO items (name) VALUES ('kept?')",
		"INSERT INTO nowhere VALUES (1)",
	)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "statement 2 failed")
	assert.Equal(t, 0, countRows(t, dsn))
}

func TestBuild_RejectsInvalidArguments(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		driver string
		stmts  string
	}{
		{name: "unknown driver", driver: "mysql", stmts: `["SELECT 1"]`},
		{name: "no statements", driver: "sqlite", stmts: `[]`},
		{name: "empty statement", driver: "sqlite", stmts: `[""]`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := registry.New()
			(&Module{}).Register(r)
			g, err := grid.NewLoader(grid.WithEnv(map[string]string{})).LoadSource("s.hcl", []byte(fmt.Sprintf(`
job "sql" "bad" {
  arguments {
    driver     = %q
    dsn        = ":memory:"
    statements = %s
  }
}`, tc.driver, tc.stmts)))
			require.NoError(t, err)

			_, err = r.Build(context.Background(), g)

			assert.Error(t, err)
		})
	}
}
