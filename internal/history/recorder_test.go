package history

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-graph-lab/internal/domain"
	"social-graph-lab/internal/storage"
	"social-graph-lab/internal/storage/memory"
)

func acct(n int) domain.AccountID {
	return domain.AccountID(fmt.Sprintf("0x%040x", n))
}

type failingStore struct {
	storage.SnapshotStore
}

var errDown = errors.New("db down")

func (failingStore) UpsertDailyStats(context.Context, *domain.DailyStat) (storage.UpsertResult, error) {
	return storage.Unchanged, errDown
}

func (failingStore) GetStats(context.Context, domain.AccountID, int, time.Time) ([]*domain.DailyStat, error) {
	return nil, errDown
}

func TestRecorder_RecordAndStats(t *testing.T) {
	store := memory.NewSnapshotStore()
	r := NewRecorder(store, nil)
	ctx := context.Background()
	day1 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 3, 2, 23, 59, 0, 0, time.UTC)

	r.Record(ctx, domain.NewRelationshipSnapshot(acct(1), []domain.AccountID{acct(2)}, nil, day1))
	// Second aggregation the same day overwrites.
	r.Record(ctx, domain.NewRelationshipSnapshot(acct(1), []domain.AccountID{acct(2), acct(3)}, nil, day1.Add(time.Hour)))
	r.Record(ctx, domain.NewRelationshipSnapshot(acct(1), []domain.AccountID{acct(2), acct(3), acct(4)}, []domain.AccountID{acct(2)}, day2))

	stats, err := r.Stats(ctx, acct(1), 7, day2)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, 2, stats[0].FollowerCount)
	assert.Equal(t, 3, stats[1].FollowerCount)

	trend := ComputeTrend(acct(1), stats)
	assert.Equal(t, 1, trend.FollowerDelta)
	assert.Equal(t, 1, trend.FollowingDelta)
	assert.Equal(t, 1, trend.MutualDelta)
	assert.True(t, trend.Growing())
	assert.Equal(t, 2, trend.Days)
}

func TestRecorder_FailuresAreSwallowedOnRecord(t *testing.T) {
	r := NewRecorder(failingStore{}, nil)
	assert.NotPanics(t, func() {
		r.Record(context.Background(), domain.NewRelationshipSnapshot(acct(1), nil, nil, time.Now()))
		r.Record(context.Background(), nil)
	})

	_, err := r.Stats(context.Background(), acct(1), 7, time.Now())
	assert.ErrorIs(t, err, domain.ErrPersistenceFailed)
	assert.ErrorIs(t, err, errDown)
}

func TestRecorder_Prune(t *testing.T) {
	store := memory.NewSnapshotStore()
	r := NewRecorder(store, nil)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	r.Record(ctx, domain.NewRelationshipSnapshot(acct(1), nil, nil, now.AddDate(0, 0, -90)))
	r.Record(ctx, domain.NewRelationshipSnapshot(acct(1), nil, nil, now.AddDate(0, 0, -10)))

	n, err := r.Prune(ctx, 0, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestComputeTrend_Empty(t *testing.T) {
	trend := ComputeTrend(acct(1), nil)
	assert.Zero(t, trend.FollowerDelta)
	assert.False(t, trend.Growing())
}
