package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-graph-lab/internal/domain"
	"social-graph-lab/internal/storage"
	"social-graph-lab/internal/storage/storagetest"
)

func TestSnapshotStore(t *testing.T) {
	storagetest.RunSnapshotStoreSuite(t, func(t *testing.T) storage.SnapshotStore {
		return NewSnapshotStore()
	})
}

func TestSnapshotStore_InvalidInput(t *testing.T) {
	store := NewSnapshotStore()
	ctx := context.Background()

	_, err := store.UpsertDailyStats(ctx, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = store.UpsertDailyStats(ctx, &domain.DailyStat{Address: storagetest.Account(1)})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = store.RandomAccountPool(ctx, 0, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestSnapshotStore_ReturnsCopies(t *testing.T) {
	store := NewSnapshotStore()
	ctx := context.Background()
	day := storagetest.Day(2024, 1, 1)

	_, err := store.UpsertDailyStats(ctx, &domain.DailyStat{Address: storagetest.Account(1), Date: day, FollowerCount: 1})
	require.NoError(t, err)

	stats, err := store.GetStats(ctx, storagetest.Account(1), 1, day)
	require.NoError(t, err)
	stats[0].FollowerCount = 99

	again, err := store.GetStats(ctx, storagetest.Account(1), 1, day)
	require.NoError(t, err)
	assert.Equal(t, 1, again[0].FollowerCount)
}

func TestWatchProgressStore(t *testing.T) {
	store := NewWatchProgressStore()
	ctx := context.Background()
	acct := storagetest.Account(7)

	_, err := store.GetProgress(ctx, acct)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.SetProgress(ctx, &storage.WatchProgress{Account: acct, Slot: 10, Signature: "s1"}))
	require.NoError(t, store.SetProgress(ctx, &storage.WatchProgress{Account: acct, Slot: 12, Signature: "s2"}))

	p, err := store.GetProgress(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, int64(12), p.Slot)
	assert.Equal(t, "s2", p.Signature)

	assert.ErrorIs(t, store.SetProgress(ctx, nil), storage.ErrInvalidInput)
}

func TestSnapshotStore_SeededPoolIsReproducible(t *testing.T) {
	ctx := context.Background()
	day := storagetest.Day(2024, 1, 1)

	draw := func(seed int64) []domain.AccountID {
		store := NewSnapshotStoreWithSeed(seed)
		for i := 0; i < 50; i++ {
			_, err := store.UpsertDailyStats(ctx, &domain.DailyStat{Address: storagetest.Account(i), Date: day})
			require.NoError(t, err)
		}
		pool, err := store.RandomAccountPool(ctx, 5, nil)
		require.NoError(t, err)
		return pool
	}

	assert.Equal(t, draw(42), draw(42))
	assert.NotEqual(t, draw(1), draw(2))
}
