// Package storagetest holds behavior tests shared by every SnapshotStore backend.
package storagetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-graph-lab/internal/domain"
	"social-graph-lab/internal/storage"
)

// Account returns a deterministic account id for n.
func Account(n int) domain.AccountID {
	return domain.AccountID(fmt.Sprintf("0x%040x", n))
}

// Day returns midnight UTC of the given date.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// RunSnapshotStoreSuite runs the shared SnapshotStore behavior tests.
// newStore must return an empty store.
func RunSnapshotStoreSuite(t *testing.T, newStore func(t *testing.T) storage.SnapshotStore) {
	t.Run("UpsertIdempotent", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		now := Day(2024, 3, 10).Add(15 * time.Hour)

		stat := &domain.DailyStat{
			Address:        Account(1),
			Date:           now,
			FollowerCount:  10,
			FollowingCount: 4,
			MutualCount:    2,
			UpdatedAt:      now,
		}

		res, err := store.UpsertDailyStats(ctx, stat)
		require.NoError(t, err)
		assert.Equal(t, storage.Inserted, res)

		res, err = store.UpsertDailyStats(ctx, stat)
		require.NoError(t, err)
		assert.Equal(t, storage.Unchanged, res)

		stats, err := store.GetStats(ctx, Account(1), 1, now)
		require.NoError(t, err)
		require.Len(t, stats, 1)
		assert.Equal(t, 10, stats[0].FollowerCount)
		assert.True(t, stats[0].Date.Equal(Day(2024, 3, 10)))
	})

	t.Run("UpsertOverwritesChangedCounts", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		now := Day(2024, 3, 10).Add(9 * time.Hour)

		first := &domain.DailyStat{Address: Account(2), Date: now, FollowerCount: 1, FollowingCount: 1}
		_, err := store.UpsertDailyStats(ctx, first)
		require.NoError(t, err)

		second := &domain.DailyStat{Address: Account(2), Date: now.Add(time.Hour), FollowerCount: 3, FollowingCount: 1, MutualCount: 1}
		res, err := store.UpsertDailyStats(ctx, second)
		require.NoError(t, err)
		assert.Equal(t, storage.Updated, res)

		stats, err := store.GetStats(ctx, Account(2), 7, now)
		require.NoError(t, err)
		require.Len(t, stats, 1)
		assert.Equal(t, 3, stats[0].FollowerCount)
		assert.Equal(t, 1, stats[0].MutualCount)
	})

	t.Run("AddressIsCaseInsensitive", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		now := Day(2024, 3, 10)

		upper := domain.AccountID("0x00000000000000000000000000000000000000AB")
		_, err := store.UpsertDailyStats(ctx, &domain.DailyStat{Address: upper, Date: now, FollowerCount: 5})
		require.NoError(t, err)

		stats, err := store.GetStats(ctx, "0x00000000000000000000000000000000000000ab", 1, now)
		require.NoError(t, err)
		assert.Len(t, stats, 1)
	})

	t.Run("GetStatsLookbackAscending", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		now := Day(2024, 3, 10).Add(12 * time.Hour)

		for i := 0; i < 10; i++ {
			_, err := store.UpsertDailyStats(ctx, &domain.DailyStat{
				Address:       Account(3),
				Date:          Day(2024, 3, 10).AddDate(0, 0, -i),
				FollowerCount: 100 - i,
			})
			require.NoError(t, err)
		}
		// Another account's rows must not leak in.
		_, err := store.UpsertDailyStats(ctx, &domain.DailyStat{Address: Account(4), Date: now, FollowerCount: 1})
		require.NoError(t, err)

		stats, err := store.GetStats(ctx, Account(3), 7, now)
		require.NoError(t, err)
		require.Len(t, stats, 7)
		assert.True(t, stats[0].Date.Equal(Day(2024, 3, 4)))
		assert.True(t, stats[6].Date.Equal(Day(2024, 3, 10)))
		for i := 1; i < len(stats); i++ {
			assert.True(t, stats[i-1].Date.Before(stats[i].Date))
		}

		_, err = store.GetStats(ctx, Account(3), 0, now)
		assert.ErrorIs(t, err, storage.ErrInvalidInput)
	})

	t.Run("RandomAccountPoolExcludes", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		now := Day(2024, 3, 10)

		for i := 10; i < 16; i++ {
			_, err := store.UpsertDailyStats(ctx, &domain.DailyStat{Address: Account(i), Date: now})
			require.NoError(t, err)
		}
		// A second day for the same address must not duplicate it in the pool.
		_, err := store.UpsertDailyStats(ctx, &domain.DailyStat{Address: Account(10), Date: now.AddDate(0, 0, -1)})
		require.NoError(t, err)

		pool, err := store.RandomAccountPool(ctx, 10, []domain.AccountID{Account(10), Account(11)})
		require.NoError(t, err)
		assert.Len(t, pool, 4)

		seen := make(map[domain.AccountID]bool)
		for _, a := range pool {
			assert.False(t, seen[a], "duplicate %s", a)
			seen[a] = true
			assert.NotEqual(t, Account(10), a)
			assert.NotEqual(t, Account(11), a)
		}

		limited, err := store.RandomAccountPool(ctx, 2, nil)
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})

	t.Run("RandomAccountPoolSamplesBeyondLimit", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		now := Day(2024, 3, 10)

		const observed, limit = 200, 25
		for i := 0; i < observed; i++ {
			_, err := store.UpsertDailyStats(ctx, &domain.DailyStat{Address: Account(1000 + i), Date: now})
			require.NoError(t, err)
		}

		distinct := make(map[domain.AccountID]struct{})
		for draw := 0; draw < 20; draw++ {
			pool, err := store.RandomAccountPool(ctx, limit, nil)
			require.NoError(t, err)
			require.Len(t, pool, limit)
			for _, a := range pool {
				distinct[a] = struct{}{}
			}
		}
		assert.Greater(t, len(distinct), limit, "repeated draws must reach past the first %d accounts", limit)
	})

	t.Run("PurgeOlderThan", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		now := Day(2024, 6, 1)

		for _, offset := range []int{0, 30, 59, 60, 61, 90} {
			_, err := store.UpsertDailyStats(ctx, &domain.DailyStat{
				Address:       Account(20),
				Date:          now.AddDate(0, 0, -offset),
				FollowerCount: offset,
			})
			require.NoError(t, err)
		}

		removed, err := store.PurgeOlderThan(ctx, domain.RetentionCutoff(now, domain.DefaultRetentionDays))
		require.NoError(t, err)
		assert.Equal(t, int64(2), removed)

		stats, err := store.GetStats(ctx, Account(20), 365, now)
		require.NoError(t, err)
		assert.Len(t, stats, 4)
	})
}
