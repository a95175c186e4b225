package migrations

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresConn is the subset of *pgxpool.Pool the runner needs.
type PostgresConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// RunPostgresMigrations applies pending embedded files, each in its own
// transaction together with its schema_migrations row.
func RunPostgresMigrations(ctx context.Context, conn PostgresConn) ([]string, error) {
	return run(ctx, pgBackend{conn}, PostgresFS, "postgres")
}

type pgBackend struct{ conn PostgresConn }

func (b pgBackend) ensureTable(ctx context.Context) error {
	_, err := b.conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+migrationTable+` (
		name       TEXT        PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	return err
}

func (b pgBackend) isApplied(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := b.conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+migrationTable+` WHERE name = $1)`, name,
	).Scan(&exists)
	return exists, err
}

func (b pgBackend) apply(ctx context.Context, m Migration) error {
	tx, err := b.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, stmt := range m.Statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, `INSERT INTO `+migrationTable+` (name) VALUES ($1)`, m.Name); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	return tx.Commit(ctx)
}
