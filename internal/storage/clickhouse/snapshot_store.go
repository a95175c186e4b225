package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"social-graph-lab/internal/domain"
	"social-graph-lab/internal/observability"
	"social-graph-lab/internal/storage"
)

const dateLayout = "2006-01-02"

// SnapshotStore implements storage.SnapshotStore using ClickHouse.
// daily_stats is a ReplacingMergeTree(updated_at); every read uses FINAL so the
// newest version per (address, stat_date) wins.
type SnapshotStore struct {
	conn *Conn
	now  func() time.Time
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(conn *Conn) *SnapshotStore {
	return &SnapshotStore{conn: conn, now: time.Now}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// UpsertDailyStats compares against the current version before inserting, since
// MergeTree engines do not enforce uniqueness at insert time.
func (s *SnapshotStore) UpsertDailyStats(ctx context.Context, stat *domain.DailyStat) (res storage.UpsertResult, err error) {
	if err := storage.ValidateStat(stat); err != nil {
		return storage.Unchanged, err
	}
	defer observe("upsert_daily_stats", time.Now(), &err)

	day := domain.TruncateDay(stat.Date)
	existing, err := s.get(ctx, stat.Address.Key(), day)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return storage.Unchanged, fmt.Errorf("check existing: %w", err)
	}
	if existing != nil && existing.SameCounts(stat) {
		return storage.Unchanged, nil
	}

	updatedAt := stat.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.now()
	}
	updatedAt = updatedAt.UTC().Truncate(time.Millisecond)
	// The replacing version must move forward or the merge may keep the old row.
	if existing != nil && !updatedAt.After(existing.UpdatedAt) {
		updatedAt = existing.UpdatedAt.Add(time.Millisecond)
	}

	err = s.conn.Exec(ctx, `
		INSERT INTO daily_stats (
			address, stat_date, follower_count, following_count, mutual_count, updated_at
		) VALUES (?, toDate(?), ?, ?, ?, ?)
	`,
		stat.Address.Key(),
		day.Format(dateLayout),
		uint32(stat.FollowerCount),
		uint32(stat.FollowingCount),
		uint32(stat.MutualCount),
		updatedAt,
	)
	if err != nil {
		return storage.Unchanged, fmt.Errorf("insert daily stats: %w", err)
	}
	if existing == nil {
		return storage.Inserted, nil
	}
	return storage.Updated, nil
}

// GetStats returns records within the lookback window, ordered by date ASC.
func (s *SnapshotStore) GetStats(ctx context.Context, address domain.AccountID, lookbackDays int, now time.Time) (stats []*domain.DailyStat, err error) {
	from, to, err := storage.LookbackWindow(lookbackDays, now)
	if err != nil {
		return nil, err
	}
	defer observe("get_stats", time.Now(), &err)

	rows, err := s.conn.Query(ctx, `
		SELECT address, stat_date, follower_count, following_count, mutual_count, updated_at
		FROM daily_stats FINAL
		WHERE address = ? AND stat_date >= toDate(?) AND stat_date <= toDate(?)
		ORDER BY stat_date ASC
	`, address.Key(), from.Format(dateLayout), to.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("query daily stats: %w", err)
	}
	defer rows.Close()

	return scanDailyStats(rows)
}

// RandomAccountPool samples distinct observed addresses with ORDER BY rand().
func (s *SnapshotStore) RandomAccountPool(ctx context.Context, limit int, exclude []domain.AccountID) (pool []domain.AccountID, err error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}
	defer observe("random_account_pool", time.Now(), &err)

	query := `SELECT DISTINCT address FROM daily_stats FINAL`
	args := []interface{}{}
	if len(exclude) > 0 {
		excluded := make([]string, len(exclude))
		for i, a := range exclude {
			excluded[i] = a.Key()
		}
		query += ` WHERE NOT has(?, address)`
		args = append(args, excluded)
	}
	query += ` ORDER BY rand() LIMIT ?`
	args = append(args, limit)

	rows, err := s.conn.Query(ctx, query, args...)
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

// PurgeOlderThan deletes records dated before cutoff's UTC day. The delete
// mutation runs synchronously so the count matches what was removed.
func (s *SnapshotStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (removed int64, err error) {
	defer observe("purge", time.Now(), &err)

	day := domain.TruncateDay(cutoff).Format(dateLayout)

	var count uint64
	if err := s.conn.QueryRow(ctx, `
		SELECT count() FROM daily_stats FINAL WHERE stat_date < toDate(?)
	`, day).Scan(&count); err != nil {
		return 0, fmt.Errorf("count expired stats: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	syncCtx := clickhouse.Context(ctx, clickhouse.WithSettings(clickhouse.Settings{
		"mutations_sync": 1,
	}))
	if err := s.conn.Exec(syncCtx, `ALTER TABLE daily_stats DELETE WHERE stat_date < toDate(?)`, day); err != nil {
		return 0, fmt.Errorf("purge daily stats: %w", err)
	}
	return int64(count), nil
}

func (s *SnapshotStore) get(ctx context.Context, address string, day time.Time) (*domain.DailyStat, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT address, stat_date, follower_count, following_count, mutual_count, updated_at
		FROM daily_stats FINAL
		WHERE address = ? AND stat_date = toDate(?)
		LIMIT 1
	`, address, day.Format(dateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats, err := scanDailyStats(rows)
	if err != nil {
		return nil, err
	}
	if len(stats) == 0 {
		return nil, storage.ErrNotFound
	}
	return stats[0], nil
}

// Rows interface for scanning
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanDailyStats scans multiple rows into a slice.
func scanDailyStats(rows chRows) ([]*domain.DailyStat, error) {
	var stats []*domain.DailyStat

	for rows.Next() {
		var (
			address                      string
			date, updatedAt              time.Time
			followers, following, mutual uint32
		)
		if err := rows.Scan(&address, &date, &followers, &following, &mutual, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan daily stat row: %w", err)
		}
		stats = append(stats, &domain.DailyStat{
			Address:        domain.AccountID(address),
			Date:           domain.TruncateDay(date),
			FollowerCount:  int(followers),
			FollowingCount: int(following),
			MutualCount:    int(mutual),
			UpdatedAt:      updatedAt.UTC(),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily stat rows: %w", err)
	}

	return stats, nil
}

func observe(operation string, start time.Time, err *error) {
	observability.RecordDBQuery("clickhouse", operation, time.Since(start).Seconds(), *err)
}
