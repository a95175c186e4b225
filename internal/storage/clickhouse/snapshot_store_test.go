package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-graph-lab/internal/domain"
	"social-graph-lab/internal/storage"
	"social-graph-lab/internal/storage/migrations"
	"social-graph-lab/internal/storage/storagetest"
)

func TestSnapshotStore(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	storagetest.RunSnapshotStoreSuite(t, func(t *testing.T) storage.SnapshotStore {
		truncate(t, conn)
		return NewSnapshotStore(conn)
	})
}

func TestSnapshotStore_UpdateMovesVersionForward(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSnapshotStore(conn)
	day := storagetest.Day(2024, 5, 1)
	stamp := day.Add(10 * time.Hour)

	_, err := store.UpsertDailyStats(ctx, &domain.DailyStat{Address: storagetest.Account(1), Date: day, FollowerCount: 1, UpdatedAt: stamp})
	require.NoError(t, err)

	// Same version timestamp with new counts must still replace the old row.
	res, err := store.UpsertDailyStats(ctx, &domain.DailyStat{Address: storagetest.Account(1), Date: day, FollowerCount: 2, UpdatedAt: stamp})
	require.NoError(t, err)
	assert.Equal(t, storage.Updated, res)

	stats, err := store.GetStats(ctx, storagetest.Account(1), 1, day)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 2, stats[0].FollowerCount)
	assert.True(t, stats[0].UpdatedAt.After(stamp))
}

func TestEnsureDatabase_RejectsBadNames(t *testing.T) {
	ctx := context.Background()

	err := EnsureDatabase(ctx, "clickhouse://localhost:9000")
	assert.ErrorContains(t, err, "missing database")

	err = EnsureDatabase(ctx, "clickhouse://localhost:9000/graph;drop")
	assert.Error(t, err)
}

func TestMigrations_RecordApplied(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	// setupTestDB already applied everything.
	applied, err := migrations.RunClickhouseMigrations(context.Background(), conn)
	require.NoError(t, err)
	assert.Empty(t, applied)
}
