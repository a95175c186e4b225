package reporting

import (
	"context"
	"time"

	"go.uber.org/zap"

	"social-graph-lab/internal/domain"
	"social-graph-lab/internal/history"
	"social-graph-lab/internal/recommend"
)

// Aggregator produces snapshots.
type Aggregator interface {
	ComputeRelationships(ctx context.Context, account domain.AccountID) (*domain.RelationshipSnapshot, error)
}

// Recommender produces ranked candidates.
type Recommender interface {
	Recommend(ctx context.Context, account domain.AccountID, targetCount int) (*recommend.Result, error)
}

// StatsReader reads stored daily stats.
type StatsReader interface {
	Stats(ctx context.Context, account domain.AccountID, lookbackDays int, now time.Time) ([]*domain.DailyStat, error)
}

// Generator assembles reports from live aggregation plus optional sections.
type Generator struct {
	aggregator  Aggregator
	recommender Recommender
	stats       StatsReader
	logger      *zap.Logger
	now         func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator. recommender and stats may be nil.
func NewGenerator(aggregator Aggregator, recommender Recommender, stats StatsReader) *Generator {
	return &Generator{
		aggregator:  aggregator,
		recommender: recommender,
		stats:       stats,
		logger:      zap.NewNop(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// WithLogger sets the logger used for degraded sections.
func (g *Generator) WithLogger(logger *zap.Logger) *Generator {
	g.logger = logger
	return g
}

// GenerateOptions selects the optional sections.
type GenerateOptions struct {
	Recommendations int // 0 skips the section
	HistoryDays     int // 0 skips the section
}

// Generate produces a report for account. Aggregation failure fails the
// report; recommendation and history failures leave their sections empty.
func (g *Generator) Generate(ctx context.Context, account domain.AccountID, opts GenerateOptions) (*Report, error) {
	snapshot, err := g.aggregator.ComputeRelationships(ctx, account)
	if err != nil {
		return nil, err
	}

	r := &Report{
		GeneratedAt: g.now(),
		Account:     string(snapshot.Account),
		Summary: SummarySection{
			Followers:       snapshot.FollowerCount(),
			Following:       snapshot.FollowingCount(),
			Mutual:          snapshot.MutualCount(),
			OneWayFollowers: len(snapshot.OneWayFollowers()),
			OneWayFollowing: len(snapshot.OneWayFollowing()),
			ComputedAt:      snapshot.ComputedAt,
		},
		Relationships: relationshipRows(snapshot),
	}

	if opts.Recommendations > 0 && g.recommender != nil {
		res, err := g.recommender.Recommend(ctx, snapshot.Account, opts.Recommendations)
		if err != nil {
			g.logger.Warn("report: recommendations unavailable", zap.Error(err))
		} else {
			r.Recommendations = recommendationRows(res.Candidates)
		}
	}

	if opts.HistoryDays > 0 && g.stats != nil {
		stats, err := g.stats.Stats(ctx, snapshot.Account, opts.HistoryDays, g.now())
		if err != nil {
			g.logger.Warn("report: history unavailable", zap.Error(err))
		} else {
			r.History, r.Trend = historyRows(snapshot.Account, stats)
		}
	}

	return r, nil
}

func relationshipRows(s *domain.RelationshipSnapshot) []RelationshipRow {
	var rows []RelationshipRow
	add := func(relation string, list []domain.AccountID) {
		for _, a := range list {
			rows = append(rows, RelationshipRow{Relation: relation, Account: string(a)})
		}
	}
	add(RelationMutual, s.Mutual())
	add(RelationOneWayFollower, s.OneWayFollowers())
	add(RelationOneWayFollowing, s.OneWayFollowing())
	return rows
}

func recommendationRows(candidates []*domain.Candidate) []RecommendationRow {
	rows := make([]RecommendationRow, len(candidates))
	for i, c := range candidates {
		rows[i] = RecommendationRow{
			Rank:        i + 1,
			Account:     string(c.Account),
			DisplayName: c.Profile.DisplayName(c.Account),
			Score:       c.Score,
			MutualCount: c.MutualCount,
			Reason:      c.ReasonText(),
			Sources:     len(c.Sources),
		}
	}
	return rows
}

func historyRows(account domain.AccountID, stats []*domain.DailyStat) ([]HistoryRow, *TrendRow) {
	rows := make([]HistoryRow, len(stats))
	for i, s := range stats {
		rows[i] = HistoryRow{
			Date:      s.Date.Format("2006-01-02"),
			Followers: s.FollowerCount,
			Following: s.FollowingCount,
			Mutual:    s.MutualCount,
		}
	}
	t := history.ComputeTrend(account, stats)
	return rows, &TrendRow{
		Days:           t.Days,
		FollowerDelta:  t.FollowerDelta,
		FollowingDelta: t.FollowingDelta,
		MutualDelta:    t.MutualDelta,
	}
}
