// Package api exposes the graph engine over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"social-graph-lab/internal/domain"
	"social-graph-lab/internal/observability"
	"social-graph-lab/internal/recommend"
)

// Aggregator is the read side used by the relationships and counts routes.
type Aggregator interface {
	ComputeRelationships(ctx context.Context, account domain.AccountID) (*domain.RelationshipSnapshot, error)
	Counts(ctx context.Context, account domain.AccountID) (*domain.RelationshipCounts, error)
}

// Recommender produces ranked candidates.
type Recommender interface {
	Recommend(ctx context.Context, account domain.AccountID, targetCount int) (*recommend.Result, error)
}

// Mutator applies follow and unfollow requests for the configured owner.
type Mutator interface {
	Owner() domain.AccountID
	Apply(ctx context.Context, accounts []domain.AccountID, mode domain.MutationMode) (*domain.MutationReport, error)
}

// StatsReader reads stored daily stats.
type StatsReader interface {
	Stats(ctx context.Context, account domain.AccountID, lookbackDays int, now time.Time) ([]*domain.DailyStat, error)
}

// Options for creating the router.
type Options struct {
	Aggregator  Aggregator  // required
	Recommender Recommender // required
	Mutator     Mutator     // nil disables POST /v1/follow and /v1/unfollow
	Stats       StatsReader // nil disables /stats
	Logger      *zap.Logger
	Now         func() time.Time

	DefaultRecommendations int
}

// Handler serves the API routes.
type Handler struct {
	agg      Aggregator
	rec      Recommender
	mutator  Mutator
	stats    StatsReader
	logger   *zap.Logger
	now      func() time.Time
	validate *validator.Validate

	defaultRecommendations int
}

// NewRouter builds the chi router with middleware and all routes.
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	defaultRecs := opts.DefaultRecommendations
	if defaultRecs <= 0 {
		defaultRecs = recommend.DefaultTargetCount
	}
	h := &Handler{
		agg:                    opts.Aggregator,
		rec:                    opts.Recommender,
		mutator:                opts.Mutator,
		stats:                  opts.Stats,
		logger:                 logger,
		now:                    now,
		validate:               validator.New(),
		defaultRecommendations: defaultRecs,
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(requestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(logger))
	r.Use(requestMetrics)

	r.Get("/health", h.health)
	r.Handle("/metrics", observability.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/accounts/{account}", func(r chi.Router) {
			r.Get("/relationships", h.getRelationships)
			r.Get("/counts", h.getCounts)
			r.Get("/recommendations", h.getRecommendations)
			r.Get("/stats", h.getStats)
		})
		r.Post("/follow", h.mutate(domain.ModeFollow))
		r.Post("/unfollow", h.mutate(domain.ModeUnfollow))
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"writes": h.mutator != nil,
	})
}
