package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"social-graph-lab/internal/domain"
	"social-graph-lab/internal/observability"
	"social-graph-lab/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using PostgreSQL.
// Rows live in daily_stats keyed by (address, stat_date).
type SnapshotStore struct {
	pool *Pool
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(pool *Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// UpsertDailyStats inserts or overwrites the record for (address, day).
// The conditional DO UPDATE leaves identical rows untouched, in which case
// RETURNING yields no row.
func (s *SnapshotStore) UpsertDailyStats(ctx context.Context, stat *domain.DailyStat) (res storage.UpsertResult, err error) {
	if err := storage.ValidateStat(stat); err != nil {
		return storage.Unchanged, err
	}
	defer observe("upsert_daily_stats", time.Now(), &err)

	updatedAt := stat.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	query := `
		INSERT INTO daily_stats (
			address, stat_date, follower_count, following_count, mutual_count, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (address, stat_date) DO UPDATE
		SET follower_count = EXCLUDED.follower_count,
		    following_count = EXCLUDED.following_count,
		    mutual_count = EXCLUDED.mutual_count,
		    updated_at = EXCLUDED.updated_at
		WHERE (daily_stats.follower_count, daily_stats.following_count, daily_stats.mutual_count)
		      IS DISTINCT FROM (EXCLUDED.follower_count, EXCLUDED.following_count, EXCLUDED.mutual_count)
		RETURNING (xmax = 0) AS inserted
	`

	var inserted bool
	err = s.pool.QueryRow(ctx, query,
		stat.Address.Key(),
		domain.TruncateDay(stat.Date),
		stat.FollowerCount,
		stat.FollowingCount,
		stat.MutualCount,
		updatedAt.UTC(),
	).Scan(&inserted)
	if err != nil {
		if noRows(err) {
			return storage.Unchanged, nil
		}
		return storage.Unchanged, fmt.Errorf("upsert daily stats: %w", err)
	}
	if inserted {
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

	query := `
		SELECT address, stat_date, follower_count, following_count, mutual_count, updated_at
		FROM daily_stats
		WHERE address = $1 AND stat_date >= $2 AND stat_date <= $3
		ORDER BY stat_date ASC
	`

	rows, err := s.pool.Query(ctx, query, address.Key(), from, to)
	if err != nil {
		return nil, fmt.Errorf("query daily stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		stat, err := scanDailyStat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan daily stat: %w", err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily stats: %w", err)
	}
	return stats, nil
}

// RandomAccountPool samples distinct observed addresses with ORDER BY random().
func (s *SnapshotStore) RandomAccountPool(ctx context.Context, limit int, exclude []domain.AccountID) (pool []domain.AccountID, err error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}
	defer observe("random_account_pool", time.Now(), &err)

	excluded := make([]string, len(exclude))
	for i, a := range exclude {
		excluded[i] = a.Key()
	}

	query := `
		SELECT address FROM (
			SELECT DISTINCT address FROM daily_stats
			WHERE NOT (address = ANY($1))
		) observed
		ORDER BY random()
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, excluded, limit)
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
func (s *SnapshotStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (removed int64, err error) {
	defer observe("purge", time.Now(), &err)

	tag, err := s.pool.Exec(ctx, `DELETE FROM daily_stats WHERE stat_date < $1`, domain.TruncateDay(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge daily stats: %w", err)
	}
	return tag.RowsAffected(), nil
}

// scanDailyStat scans a single row into DailyStat.
func scanDailyStat(row pgx.Row) (*domain.DailyStat, error) {
	var (
		stat    domain.DailyStat
		address string
	)
	err := row.Scan(
		&address,
		&stat.Date,
		&stat.FollowerCount,
		&stat.FollowingCount,
		&stat.MutualCount,
		&stat.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	stat.Address = domain.AccountID(address)
	stat.Date = domain.TruncateDay(stat.Date)
	stat.UpdatedAt = stat.UpdatedAt.UTC()
	return &stat, nil
}

func observe(operation string, start time.Time, err *error) {
	observability.RecordDBQuery("postgres", operation, time.Since(start).Seconds(), *err)
}
