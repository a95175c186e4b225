package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-graph-lab/internal/domain"
	"social-graph-lab/internal/storage"
	"social-graph-lab/internal/storage/storagetest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore(t *testing.T) {
	storagetest.RunSnapshotStoreSuite(t, func(t *testing.T) storage.SnapshotStore {
		return openTestStore(t)
	})
}

func TestOpen_InMemory(t *testing.T) {
	store, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	defer store.Close()

	_, err = store.UpsertDailyStats(context.Background(), &domain.DailyStat{
		Address: storagetest.Account(1),
		Date:    storagetest.Day(2024, 1, 1),
	})
	assert.NoError(t, err)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.db")
	ctx := context.Background()
	day := storagetest.Day(2024, 2, 2)

	store, err := Open(ctx, path)
	require.NoError(t, err)
	_, err = store.UpsertDailyStats(ctx, &domain.DailyStat{Address: storagetest.Account(1), Date: day, FollowerCount: 4})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Migrations are recorded, so reopening does not re-run them.
	store, err = Open(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	stats, err := store.GetStats(ctx, storagetest.Account(1), 1, day)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 4, stats[0].FollowerCount)
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open(context.Background(), " ")
	assert.Error(t, err)
}

func TestRandomAccountPool_ExclusionAboveParameterLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	day := storagetest.Day(2024, 3, 10)

	for i := 0; i < 5; i++ {
		_, err := store.UpsertDailyStats(ctx, &domain.DailyStat{Address: storagetest.Account(i), Date: day})
		require.NoError(t, err)
	}

	// Well past SQLite's 32766 host parameter ceiling.
	exclude := []domain.AccountID{storagetest.Account(0), storagetest.Account(1)}
	for i := 0; i < 40000; i++ {
		exclude = append(exclude, storagetest.Account(100000+i))
	}

	pool, err := store.RandomAccountPool(ctx, 10, exclude)
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.AccountID{
		storagetest.Account(2), storagetest.Account(3), storagetest.Account(4),
	}, pool)
}
