package migrations

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// RunClickhouseMigrations applies pending embedded files statement by statement.
// ClickHouse has no transactional DDL, so files must stay idempotent
// (IF NOT EXISTS) in case a run stops between a statement and its record.
// The target database must already exist; see clickhouse.EnsureDatabase.
func RunClickhouseMigrations(ctx context.Context, conn driver.Conn) ([]string, error) {
	return run(ctx, chBackend{conn}, ClickhouseFS, "clickhouse")
}

type chBackend struct{ conn driver.Conn }

func (b chBackend) ensureTable(ctx context.Context) error {
	return b.conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+migrationTable+` (
		name       String,
		applied_at DateTime64(3, 'UTC')
	) ENGINE = ReplacingMergeTree(applied_at)
	ORDER BY name`)
}

func (b chBackend) isApplied(ctx context.Context, name string) (bool, error) {
	var n uint64
	err := b.conn.QueryRow(ctx,
		`SELECT count() FROM `+migrationTable+` FINAL WHERE name = ?`, name,
	).Scan(&n)
	return n > 0, err
}

func (b chBackend) apply(ctx context.Context, m Migration) error {
	// The native protocol rejects multi-statement Exec.
	for _, stmt := range m.Statements {
		if err := b.conn.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return b.conn.Exec(ctx,
		`INSERT INTO `+migrationTable+` (name, applied_at) VALUES (?, ?)`,
		m.Name, time.Now().UTC())
}
