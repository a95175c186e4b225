// Package app wires configuration into the engine components shared by the
// server and the CLI.
package app

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"go.uber.org/zap"

	"social-graph-lab/internal/config"
	"social-graph-lab/internal/domain"
	"social-graph-lab/internal/graph"
	"social-graph-lab/internal/history"
	"social-graph-lab/internal/ledger"
	"social-graph-lab/internal/mutation"
	"social-graph-lab/internal/profile"
	"social-graph-lab/internal/recommend"
	"social-graph-lab/internal/reporting"
)

// App holds the constructed components.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Stores     *Stores
	Client     *ledger.RelationshipClient
	Aggregator *graph.Aggregator
	Recorder   *history.Recorder
	Engine     *recommend.Engine
	Reports    *reporting.Generator
	// Orchestrator is nil when no signer is configured.
	Orchestrator *mutation.Orchestrator
}

// New builds every component from cfg. The caller must Close the App.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	stores, err := OpenStores(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	var signer *ledger.Signer
	if cfg.CanWrite() {
		signer, err = ledger.NewSigner(domain.AccountID(cfg.Ledger.Owner), cfg.Ledger.SignerKey)
		if err != nil {
			stores.Close()
			return nil, fmt.Errorf("signer: %w", err)
		}
	}

	a := &App{Config: cfg, Logger: logger, Stores: stores}
	a.Client = ledger.NewRelationshipClient(NewRPCClient(cfg.Ledger, logger), ledger.RelationshipOptions{
		Signer:   signer,
		PageSize: cfg.Ledger.PageSize,
		MaxPages: cfg.Ledger.MaxPages,
		Logger:   logger.Named("ledger"),
	})
	a.Recorder = history.NewRecorder(stores.Snapshots, logger.Named("history"))
	a.Aggregator = graph.NewAggregator(graph.Options{
		Reader:   a.Client,
		Recorder: a.Recorder,
		Logger:   logger.Named("graph"),
	})

	seed := cfg.Recommend.RandSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	a.Engine = recommend.NewEngine(recommend.Options{
		Aggregator:      a.Aggregator,
		Reader:          a.Client,
		Pool:            stores.Snapshots,
		Profiles:        newProfileResolver(cfg.Profile, logger),
		SeedConcurrency: cfg.Recommend.SeedConcurrency,
		Rand:            rand.New(rand.NewSource(seed)),
		Logger:          logger.Named("recommend"),
	})
	a.Reports = reporting.NewGenerator(a.Aggregator, a.Engine, a.Recorder).WithLogger(logger.Named("reporting"))

	if signer != nil {
		a.Orchestrator, err = mutation.New(mutation.Options{
			Owner:              signer.Account(),
			Writer:             a.Client,
			Refresher:          a.Aggregator,
			VerifyBeforeMutate: cfg.Mutation.VerifyBeforeMutate,
			Logger:             logger.Named("mutation"),
		})
		if err != nil {
			stores.Close()
			return nil, err
		}
	}
	return a, nil
}

// Close releases store connections.
func (a *App) Close() {
	a.Stores.Close()
}

// NewRPCClient builds the ledger JSON-RPC client with breaker and rate limit.
func NewRPCClient(cfg config.LedgerConfig, logger *zap.Logger) *ledger.HTTPClient {
	breaker := ledger.DefaultBreakerConfig()
	breaker.FailureThreshold = cfg.BreakerThreshold
	breaker.Timeout = cfg.BreakerTimeout
	if cfg.BreakerMinCalls > 0 {
		breaker.MinRequests = cfg.BreakerMinCalls
	}
	return ledger.NewHTTPClient(cfg.RPCURL,
		ledger.WithTimeout(cfg.Timeout),
		ledger.WithMaxRetries(cfg.MaxRetries),
		ledger.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
		ledger.WithBreaker(breaker),
		ledger.WithLogger(logger.Named("rpc")),
	)
}

// newProfileResolver returns nil when no base URL is configured.
func newProfileResolver(cfg config.ProfileConfig, logger *zap.Logger) profile.Resolver {
	if cfg.BaseURL == "" {
		return nil
	}
	var r profile.Resolver = profile.NewHTTPResolver(cfg.BaseURL,
		&http.Client{Timeout: cfg.Timeout}, logger.Named("profile"))
	if cfg.CacheTTL > 0 {
		r = profile.NewCachedResolver(r, cfg.CacheTTL)
	}
	return r
}
