// Package sql_exec provides a job kind that runs SQL statements in a single
// transaction, against SQLite (modernc.org/sqlite) or PostgreSQL (pgx).
package sql_exec

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/vk/jobgrid/internal/ctxlog"
	"github.com/vk/jobgrid/internal/grid"
	"github.com/vk/jobgrid/internal/registry"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the sql kind.
type Input struct {
	Driver     string   `hcl:"driver" validate:"required,oneof=sqlite pgx"`
	DSN        string   `hcl:"dsn" validate:"required"`
	Statements []string `hcl:"statements" validate:"min=1,dive,required"`
}

// Register registers the kind with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterKind("sql", build)
}

func build(_ context.Context, spec *grid.JobSpec) (*registry.Runnable, error) {
	var input Input
	if err := spec.Decode(&input); err != nil {
		return nil, err
	}
	return &registry.Runnable{Action: func(ctx context.Context) error {
		return Exec(ctx, input.Driver, input.DSN, input.Statements...)
	}}, nil
}

// Exec opens the database, runs statements in one transaction and closes
// it. Any failing statement rolls the whole transaction back.
func Exec(ctx context.Context, driver, dsn string, statements ...string) (err error) {
	logger := ctxlog.FromContext(ctx).With("driver", driver)

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to reach %s database: %w", driver, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var affected int64
	for i, stmt := range statements {
		res, err := tx.ExecContext(ctx, stmt)
		if err != nil {
			return fmt.Errorf("statement %d failed: %w", i+1, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			affected += n
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	logger.Debug("SQL statements committed", "statements", len(statements), "rows_affected", affected)
	return nil
}
