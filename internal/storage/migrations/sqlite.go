package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RunSQLiteMigrations applies pending embedded files, each in a transaction.
func RunSQLiteMigrations(ctx context.Context, db *sql.DB) ([]string, error) {
	if db == nil {
		return nil, fmt.Errorf("sql db is required")
	}
	return run(ctx, sqliteBackend{db}, SQLiteFS, "sqlite")
}

type sqliteBackend struct{ db *sql.DB }

func (b sqliteBackend) ensureTable(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+migrationTable+` (
		name       TEXT    PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`)
	return err
}

func (b sqliteBackend) isApplied(ctx context.Context, name string) (bool, error) {
	var n int
	err := b.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM `+migrationTable+` WHERE name = ?`, name,
	).Scan(&n)
	return n > 0, err
}

func (b sqliteBackend) apply(ctx context.Context, m Migration) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO `+migrationTable+` (name, applied_at) VALUES (?, ?)`,
		m.Name, time.Now().UTC().UnixMilli(),
	); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	return tx.Commit()
}
