// Package recommend ranks accounts to follow by expanding the requester's
// second-degree neighborhood, with a random-pool fallback for sparse graphs.
package recommend

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"social-graph-lab/internal/domain"
	"social-graph-lab/internal/observability"
	"social-graph-lab/internal/profile"
)

const (
	DefaultTargetCount     = 25
	DefaultSeedConcurrency = 4

	SeedsPerGroup        = 20 // taken from each of mutual, followers, following
	MaxRanked            = 50
	MinNetworkCandidates = 5

	ScoreFloor   = 50
	ScoreCeiling = 98
	BonusRanks   = 20

	FallbackScoreMin = 60
	FallbackScoreMax = 95
)

// rankBonus is round(20*0.3), granted to the first BonusRanks ranked candidates.
var rankBonus = int(math.Round(20 * 0.3))

// Aggregator produces the requester's snapshot.
type Aggregator interface {
	ComputeRelationships(ctx context.Context, account domain.AccountID) (*domain.RelationshipSnapshot, error)
}

// NeighborReader fetches full relationship lists for seed accounts.
type NeighborReader interface {
	AllFollowers(ctx context.Context, account domain.AccountID) ([]domain.AccountID, error)
	AllFollowing(ctx context.Context, account domain.AccountID) ([]domain.AccountID, error)
}

// AccountPool samples previously observed accounts for the fallback path.
type AccountPool interface {
	RandomAccountPool(ctx context.Context, limit int, exclude []domain.AccountID) ([]domain.AccountID, error)
}

// Engine computes recommendations. Safe for concurrent use.
type Engine struct {
	aggregator      Aggregator
	reader          NeighborReader
	pool            AccountPool
	profiles        profile.Resolver
	seedConcurrency int
	logger          *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Options for creating Engine.
type Options struct {
	Aggregator      Aggregator     // required
	Reader          NeighborReader // required
	Pool            AccountPool    // optional; without it the fallback yields nothing
	Profiles        profile.Resolver
	SeedConcurrency int
	// Rand drives the fallback shuffle and scores. Nil seeds from the clock.
	Rand   *rand.Rand
	Logger *zap.Logger
}

// Result is a ranked recommendation list and how it was produced.
type Result struct {
	Account      domain.AccountID
	Candidates   []*domain.Candidate
	SeedSize     int
	NetworkCount int  // candidates derived from the neighborhood
	UsedFallback bool // at least one candidate came from the random pool
}

// NewEngine creates a new Engine.
func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	concurrency := opts.SeedConcurrency
	if concurrency <= 0 {
		concurrency = DefaultSeedConcurrency
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{
		aggregator:      opts.Aggregator,
		reader:          opts.Reader,
		pool:            opts.Pool,
		profiles:        opts.Profiles,
		seedConcurrency: concurrency,
		logger:          logger,
		rng:             rng,
	}
}

// Recommend returns up to targetCount candidates for account. A targetCount
// of zero or less means DefaultTargetCount. Ledger failures while aggregating
// the requester propagate; seed, pool and profile failures degrade.
func (e *Engine) Recommend(ctx context.Context, account domain.AccountID, targetCount int) (*Result, error) {
	if targetCount <= 0 {
		targetCount = DefaultTargetCount
	}

	snapshot, err := e.aggregator.ComputeRelationships(ctx, account)
	if err != nil {
		return nil, err
	}
	acct := snapshot.Account
	result := &Result{Account: acct}
	log := e.logger.With(zap.String("account", string(acct)))

	var candidates []*domain.Candidate
	following := snapshot.Following()

	if !snapshot.Empty() {
		seeds := buildSeeds(snapshot)
		result.SeedSize = len(seeds)

		ranked, err := e.expand(ctx, acct, snapshot, seeds)
		if err != nil {
			return nil, err
		}

		following = e.currentFollowing(ctx, acct, following)
		current := domain.NewAccountSet(following...)
		for _, c := range ranked {
			if !current.Contains(c.Account) {
				candidates = append(candidates, c)
			}
		}
		score(candidates, len(seeds))
		result.NetworkCount = len(candidates)
		log.Debug("neighborhood expanded",
			zap.Int("seeds", len(seeds)),
			zap.Int("candidates", len(candidates)))
	}

	if len(candidates) < MinNetworkCandidates && len(candidates) < targetCount {
		extra := e.fallback(ctx, acct, following, candidates, targetCount-len(candidates))
		if len(extra) > 0 {
			result.UsedFallback = true
			candidates = append(candidates, extra...)
		}
	}

	if len(candidates) > targetCount {
		candidates = candidates[:targetCount]
	}
	e.enrich(ctx, candidates)
	result.Candidates = candidates

	observability.RecordRecommendation(result.path(), len(candidates))
	log.Info("recommendations computed",
		zap.Int("count", len(candidates)),
		zap.Int("network", result.NetworkCount),
		zap.Bool("fallback", result.UsedFallback))
	return result, nil
}

func (r *Result) path() string {
	switch {
	case r.UsedFallback && r.NetworkCount > 0:
		return "mixed"
	case r.UsedFallback:
		return "fallback"
	default:
		return "network"
	}
}

// buildSeeds takes up to SeedsPerGroup accounts from mutual, followers and
// following in that order, deduplicated.
func buildSeeds(s *domain.RelationshipSnapshot) []domain.AccountID {
	set := domain.NewAccountSet()
	for _, group := range [][]domain.AccountID{s.Mutual(), s.Followers(), s.Following()} {
		for i, a := range group {
			if i >= SeedsPerGroup {
				break
			}
			set.Add(a)
		}
	}
	return set.Slice()
}

// seedHits is one seed's contribution, kept local to its goroutine.
type seedHits struct {
	order  []domain.AccountID
	counts map[string]int
	ok     bool
}

func (h *seedHits) add(a domain.AccountID) {
	k := a.Key()
	if _, seen := h.counts[k]; !seen {
		h.order = append(h.order, domain.AccountID(k))
	}
	h.counts[k]++
}

// expand fans out over seeds with bounded concurrency and merges the per-seed
// results in seed order, then ranks.
func (e *Engine) expand(ctx context.Context, acct domain.AccountID, snapshot *domain.RelationshipSnapshot, seeds []domain.AccountID) ([]*domain.Candidate, error) {
	hits := make([]seedHits, len(seeds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.seedConcurrency)
	for i, seed := range seeds {
		g.Go(func() error {
			h := seedHits{counts: make(map[string]int)}
			eligible := func(list []domain.AccountID) {
				for _, c := range list {
					if c.Equal(acct) || snapshot.IsFollowing(c) {
						continue
					}
					h.add(c)
				}
			}

			following, err := e.reader.AllFollowing(gctx, seed)
			if err != nil {
				e.seedFailed(seed, err)
				return nil
			}
			followers, err := e.reader.AllFollowers(gctx, seed)
			if err != nil {
				e.seedFailed(seed, err)
				return nil
			}
			eligible(following)
			eligible(followers)
			h.ok = true
			hits[i] = h
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	byKey := make(map[string]*domain.Candidate)
	var discovered []*domain.Candidate
	for i, h := range hits {
		if !h.ok {
			continue
		}
		for _, a := range h.order {
			c, ok := byKey[a.Key()]
			if !ok {
				c = &domain.Candidate{Account: a}
				byKey[a.Key()] = c
				discovered = append(discovered, c)
			}
			c.MutualCount += h.counts[a.Key()]
			c.AddSource(seeds[i])
		}
	}

	sort.SliceStable(discovered, func(i, j int) bool {
		return discovered[i].MutualCount > discovered[j].MutualCount
	})
	if len(discovered) > MaxRanked {
		discovered = discovered[:MaxRanked]
	}
	return discovered, nil
}

func (e *Engine) seedFailed(seed domain.AccountID, err error) {
	observability.RecordSeedFailure()
	e.logger.Warn("seed expansion failed, skipping",
		zap.String("seed", string(seed)),
		zap.Error(err))
}

// currentFollowing re-reads the requester's following list. On failure the
// snapshot's list is used.
func (e *Engine) currentFollowing(ctx context.Context, acct domain.AccountID, fallback []domain.AccountID) []domain.AccountID {
	fresh, err := e.reader.AllFollowing(ctx, acct)
	if err != nil {
		e.logger.Warn("following re-check failed, using snapshot",
			zap.String("account", string(acct)),
			zap.Error(err))
		return fallback
	}
	return append(fresh, fallback...)
}

// score assigns scores and reasons to ranked network candidates.
func score(candidates []*domain.Candidate, seedSize int) {
	if seedSize == 0 {
		return
	}
	for i, c := range candidates {
		ratio := float64(c.MutualCount) / float64(seedSize)
		s := int(math.Round(100 * ratio * 0.7))
		if i < BonusRanks {
			s += rankBonus
		}
		c.Score = clamp(s, ScoreFloor, ScoreCeiling)
		c.Reason = reasonFor(ratio*100, c.MutualCount)
	}
}

func reasonFor(overlapPct float64, mutualCount int) domain.Reason {
	switch {
	case overlapPct > 70:
		return domain.ReasonHighlyPopular
	case overlapPct > 50:
		return domain.ReasonPopular
	case overlapPct > 30:
		return domain.ReasonSeveralMutual
	case mutualCount > 0:
		return domain.ReasonFollowedByConnections
	default:
		return domain.ReasonGrowingProfile
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// fallback samples the random pool, excluding the requester, followed accounts
// and existing candidates. Pool errors are logged and yield nothing.
func (e *Engine) fallback(ctx context.Context, acct domain.AccountID, following []domain.AccountID, existing []*domain.Candidate, limit int) []*domain.Candidate {
	if e.pool == nil || limit <= 0 {
		return nil
	}
	exclude := make([]domain.AccountID, 0, 1+len(following)+len(existing))
	exclude = append(exclude, acct)
	exclude = append(exclude, following...)
	for _, c := range existing {
		exclude = append(exclude, c.Account)
	}

	pool, err := e.pool.RandomAccountPool(ctx, limit, exclude)
	if err != nil {
		observability.RecordPersistenceFailure("random_account_pool")
		e.logger.Warn("fallback pool unavailable",
			zap.String("account", string(acct)),
			zap.Error(domain.NewOpError("randomAccountPool", acct, domain.ErrPersistenceFailed, err)))
		return nil
	}

	excluded := domain.NewAccountSet(exclude...)
	out := make([]*domain.Candidate, 0, len(pool))

	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	e.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	for _, a := range pool {
		if excluded.Contains(a) {
			continue
		}
		out = append(out, &domain.Candidate{
			Account: domain.AccountID(a.Key()),
			Score:   FallbackScoreMin + e.rng.Intn(FallbackScoreMax-FallbackScoreMin+1),
			Reason:  domain.ReasonTrending,
		})
		if len(out) == limit {
			break
		}
	}
	return out
}

// enrich resolves profiles concurrently. Failures leave Profile nil.
func (e *Engine) enrich(ctx context.Context, candidates []*domain.Candidate) {
	if e.profiles == nil || len(candidates) == 0 {
		return
	}
	var g errgroup.Group
	g.SetLimit(e.seedConcurrency)
	for _, c := range candidates {
		g.Go(func() error {
			p, err := e.profiles.Resolve(ctx, c.Account)
			if err != nil {
				e.logger.Debug("profile unavailable",
					zap.String("account", string(c.Account)),
					zap.Error(err))
				return nil
			}
			c.Profile = p
			return nil
		})
	}
	_ = g.Wait()
}
