// Package history persists daily relationship counts and derives growth trends.
package history

import (
	"context"
	"time"

	"go.uber.org/zap"

	"social-graph-lab/internal/domain"
	"social-graph-lab/internal/observability"
	"social-graph-lab/internal/storage"
)

// DefaultLookbackDays is the window used when a caller asks for stats without one.
const DefaultLookbackDays = 30

// Recorder writes one DailyStat per account per UTC day.
// Write failures are logged and counted but never returned to the aggregation path.
type Recorder struct {
	store  storage.SnapshotStore
	logger *zap.Logger
}

// NewRecorder creates a Recorder over store.
func NewRecorder(store storage.SnapshotStore, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, logger: logger}
}

// Record upserts the snapshot's daily stat.
func (r *Recorder) Record(ctx context.Context, snapshot *domain.RelationshipSnapshot) {
	if snapshot == nil {
		return
	}
	stat := snapshot.DailyStat()
	res, err := r.store.UpsertDailyStats(ctx, stat)
	if err != nil {
		observability.RecordPersistenceFailure("upsert_daily_stats")
		r.logger.Warn("daily stat upsert failed",
			zap.String("account", string(stat.Address)),
			zap.Time("date", stat.Date),
			zap.Error(err))
		return
	}
	r.logger.Debug("daily stat recorded",
		zap.String("account", string(stat.Address)),
		zap.String("result", res.String()))
}

// Stats returns the stored records for account over lookbackDays ending today (UTC).
func (r *Recorder) Stats(ctx context.Context, account domain.AccountID, lookbackDays int, now time.Time) ([]*domain.DailyStat, error) {
	acct, err := domain.NormalizeAccount(string(account))
	if err != nil {
		return nil, err
	}
	if lookbackDays == 0 {
		lookbackDays = DefaultLookbackDays
	}
	stats, err := r.store.GetStats(ctx, acct, lookbackDays, now)
	if err != nil {
		observability.RecordPersistenceFailure("get_stats")
		return nil, domain.NewOpError("getStats", acct, domain.ErrPersistenceFailed, err)
	}
	return stats, nil
}

// Prune deletes records older than retentionDays before now.
func (r *Recorder) Prune(ctx context.Context, retentionDays int, now time.Time) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = domain.DefaultRetentionDays
	}
	cutoff := domain.RetentionCutoff(now, retentionDays)
	n, err := r.store.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		observability.RecordPersistenceFailure("purge")
		return 0, domain.NewOpError("prune", "", domain.ErrPersistenceFailed, err)
	}
	r.logger.Info("pruned daily stats",
		zap.Int64("removed", n),
		zap.Time("cutoff", cutoff))
	return n, nil
}
