package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-graph-lab/internal/storage"
	"social-graph-lab/internal/storage/storagetest"
)

func TestSnapshotStore(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	storagetest.RunSnapshotStoreSuite(t, func(t *testing.T) storage.SnapshotStore {
		truncate(t, pool)
		return NewSnapshotStore(pool)
	})
}

func TestWatchProgressStore_Upsert(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewWatchProgressStore(pool)
	acct := storagetest.Account(3)

	_, err := store.GetProgress(ctx, acct)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.SetProgress(ctx, &storage.WatchProgress{Account: acct, Slot: 100, Signature: "Sig100"}))
	require.NoError(t, store.SetProgress(ctx, &storage.WatchProgress{Account: acct, Slot: 200, Signature: "Sig200"}))

	p, err := store.GetProgress(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, acct, p.Account)
	assert.Equal(t, int64(200), p.Slot)
	assert.Equal(t, "Sig200", p.Signature)

	assert.ErrorIs(t, store.SetProgress(ctx, nil), storage.ErrInvalidInput)
}
