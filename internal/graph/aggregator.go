// Package graph reconstructs an account's follow graph from the ledger and
// derives the mutual and one-way partitions.
package graph

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"social-graph-lab/internal/domain"
	"social-graph-lab/internal/observability"
)

// RelationshipReader is the read side of the ledger relationship client.
type RelationshipReader interface {
	AllFollowers(ctx context.Context, account domain.AccountID) ([]domain.AccountID, error)
	AllFollowing(ctx context.Context, account domain.AccountID) ([]domain.AccountID, error)
	Counts(ctx context.Context, account domain.AccountID) (*domain.RelationshipCounts, error)
}

// SnapshotRecorder receives every successful snapshot. Implementations must not
// fail the aggregation; errors are theirs to handle.
type SnapshotRecorder interface {
	Record(ctx context.Context, snapshot *domain.RelationshipSnapshot)
}

// Aggregator computes relationship snapshots.
type Aggregator struct {
	reader   RelationshipReader
	recorder SnapshotRecorder
	logger   *zap.Logger
	now      func() time.Time
}

// Options for creating Aggregator.
type Options struct {
	Reader   RelationshipReader // required
	Recorder SnapshotRecorder   // optional daily-stat hook
	Logger   *zap.Logger
	Now      func() time.Time
}

// NewAggregator creates a new Aggregator.
func NewAggregator(opts Options) *Aggregator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Aggregator{
		reader:   opts.Reader,
		recorder: opts.Recorder,
		logger:   logger,
		now:      now,
	}
}

// ComputeRelationships fetches the full follower and following sets concurrently
// and partitions them. Either fetch failing yields ErrAggregationFailed and no snapshot.
func (a *Aggregator) ComputeRelationships(ctx context.Context, account domain.AccountID) (*domain.RelationshipSnapshot, error) {
	acct, err := domain.NormalizeAccount(string(account))
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var followers, following []domain.AccountID

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		followers, err = a.reader.AllFollowers(gctx, acct)
		return err
	})
	g.Go(func() error {
		var err error
		following, err = a.reader.AllFollowing(gctx, acct)
		return err
	})

	if err := g.Wait(); err != nil {
		observability.RecordAggregation(time.Since(start).Seconds(), 0, 0, 0, err)
		a.logger.Warn("aggregation failed", zap.String("account", string(acct)), zap.Error(err))
		return nil, domain.NewOpError("computeRelationships", acct, domain.ErrAggregationFailed, err)
	}

	snapshot := domain.NewRelationshipSnapshot(acct, followers, following, a.now().UTC())
	observability.RecordAggregation(time.Since(start).Seconds(),
		snapshot.FollowerCount(), snapshot.FollowingCount(), snapshot.MutualCount(), nil)

	a.logger.Debug("aggregation complete",
		zap.String("account", string(acct)),
		zap.Int("followers", snapshot.FollowerCount()),
		zap.Int("following", snapshot.FollowingCount()),
		zap.Int("mutual", snapshot.MutualCount()))

	if a.recorder != nil {
		a.recorder.Record(ctx, snapshot)
	}
	return snapshot, nil
}

// Counts returns follower and following counts without walking the sets.
func (a *Aggregator) Counts(ctx context.Context, account domain.AccountID) (*domain.RelationshipCounts, error) {
	acct, err := domain.NormalizeAccount(string(account))
	if err != nil {
		return nil, err
	}
	counts, err := a.reader.Counts(ctx, acct)
	if err != nil {
		return nil, domain.NewOpError("counts", acct, domain.ErrLedgerUnavailable, err)
	}
	return counts, nil
}
