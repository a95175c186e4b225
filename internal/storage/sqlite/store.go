// Package sqlite provides a SQLite-backed SnapshotStore for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"social-graph-lab/internal/domain"
	"social-graph-lab/internal/observability"
	"social-graph-lab/internal/storage"
	"social-graph-lab/internal/storage/migrations"
)

const dateLayout = "2006-01-02"

// Store persists daily stats in SQLite.
type Store struct {
	sqlDB    *sql.DB
	now      func() time.Time
	migrated []string
}

// Migrated lists the migration files applied when the store was opened.
func (s *Store) Migrated() []string { return s.migrated }

// Compile-time interface check.
var _ storage.SnapshotStore = (*Store)(nil)

// Open opens a SQLite store at path and applies embedded migrations.
// ":memory:" opens a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := ":memory:"
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is a separate database.
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	applied, err := migrations.RunSQLiteMigrations(ctx, sqlDB)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now, migrated: applied}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// UpsertDailyStats inserts or overwrites the record for (address, day) inside a
// transaction so the outcome can be reported.
func (s *Store) UpsertDailyStats(ctx context.Context, stat *domain.DailyStat) (res storage.UpsertResult, err error) {
	if err := storage.ValidateStat(stat); err != nil {
		return storage.Unchanged, err
	}
	defer observe("upsert_daily_stats", time.Now(), &err)

	address := stat.Address.Key()
	day := domain.TruncateDay(stat.Date).Format(dateLayout)
	updatedAt := stat.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.now()
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.Unchanged, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var existing domain.DailyStat
	err = tx.QueryRowContext(ctx, `
		SELECT follower_count, following_count, mutual_count
		FROM daily_stats WHERE address = ? AND stat_date = ?
	`, address, day).Scan(&existing.FollowerCount, &existing.FollowingCount, &existing.MutualCount)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res = storage.Inserted
	case err != nil:
		return storage.Unchanged, fmt.Errorf("check existing: %w", err)
	case existing.SameCounts(stat):
		err = tx.Commit()
		return storage.Unchanged, err
	default:
		res = storage.Updated
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO daily_stats (
			address, stat_date, follower_count, following_count, mutual_count, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (address, stat_date) DO UPDATE
		SET follower_count = excluded.follower_count,
		    following_count = excluded.following_count,
		    mutual_count = excluded.mutual_count,
		    updated_at = excluded.updated_at
	`, address, day, stat.FollowerCount, stat.FollowingCount, stat.MutualCount, updatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return storage.Unchanged, fmt.Errorf("upsert daily stats: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return storage.Unchanged, fmt.Errorf("commit: %w", err)
	}
	return res, nil
}

// GetStats returns records within the lookback window, ordered by date ASC.
func (s *Store) GetStats(ctx context.Context, address domain.AccountID, lookbackDays int, now time.Time) (stats []*domain.DailyStat, err error) {
	from, to, err := storage.LookbackWindow(lookbackDays, now)
	if err != nil {
		return nil, err
	}
	defer observe("get_stats", time.Now(), &err)

	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT address, stat_date, follower_count, following_count, mutual_count, updated_at
		FROM daily_stats
		WHERE address = ? AND stat_date >= ? AND stat_date <= ?
		ORDER BY stat_date ASC
	`, address.Key(), from.Format(dateLayout), to.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("query daily stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			stat            domain.DailyStat
			addr, date, upd string
		)
		if err := rows.Scan(&addr, &date, &stat.FollowerCount, &stat.FollowingCount, &stat.MutualCount, &upd); err != nil {
			return nil, fmt.Errorf("scan daily stat: %w", err)
		}
		stat.Address = domain.AccountID(addr)
		if stat.Date, err = time.ParseInLocation(dateLayout, date, time.UTC); err != nil {
			return nil, fmt.Errorf("parse stat_date %q: %w", date, err)
		}
		if stat.UpdatedAt, err = time.Parse(time.RFC3339Nano, upd); err != nil {
			return nil, fmt.Errorf("parse updated_at %q: %w", upd, err)
		}
		stats = append(stats, &stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily stats: %w", err)
	}
	return stats, nil
}

// RandomAccountPool samples distinct observed addresses with ORDER BY random().
func (s *Store) RandomAccountPool(ctx context.Context, limit int, exclude []domain.AccountID) (pool []domain.AccountID, err error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}
	defer observe("random_account_pool", time.Now(), &err)

	// Excludes travel as one JSON array so large following lists stay under
	// SQLite's host parameter limit.
	excluded := make([]string, len(exclude))
	for i, a := range exclude {
		excluded[i] = a.Key()
	}
	excludedJSON, err := json.Marshal(excluded)
	if err != nil {
		return nil, fmt.Errorf("encode exclusions: %w", err)
	}

	query := `
		SELECT DISTINCT address FROM daily_stats
		WHERE address NOT IN (SELECT value FROM json_each(?))
		ORDER BY random()
		LIMIT ?`
	args := []interface{}{string(excludedJSON), limit}

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query account pool: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		pool = append(pool, domain.AccountID(addr))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account pool: %w", err)
	}
	return pool, nil
}

// PurgeOlderThan deletes records dated before cutoff's UTC day.
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) (removed int64, err error) {
	defer observe("purge", time.Now(), &err)

	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM daily_stats WHERE stat_date < ?`,
		domain.TruncateDay(cutoff).Format(dateLayout))
	if err != nil {
		return 0, fmt.Errorf("purge daily stats: %w", err)
	}
	return result.RowsAffected()
}

func observe(operation string, start time.Time, err *error) {
	observability.RecordDBQuery("sqlite", operation, time.Since(start).Seconds(), *err)
}
