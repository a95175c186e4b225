// Package main runs the graph API server:
// - HTTP API (relationships, counts, recommendations, stats, follow/unfollow)
// - Prometheus metrics and health
// - Optional live watchers that re-aggregate accounts on ledger events
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"social-graph-lab/internal/api"
	"social-graph-lab/internal/app"
	"social-graph-lab/internal/config"
	"social-graph-lab/internal/domain"
	"social-graph-lab/internal/graph"
	"social-graph-lab/internal/ledger"
	"social-graph-lab/internal/observability"
)

func main() {
	// Load .env file if exists
	config.LoadDotEnv(".env")

	configPath := flag.String("config", "", "Path to YAML config file (overrides GRAPH_CONFIG_FILE)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	routerOpts := api.Options{
		Aggregator:             a.Aggregator,
		Recommender:            a.Engine,
		Stats:                  a.Recorder,
		Logger:                 logger.Named("api"),
		DefaultRecommendations: cfg.Recommend.TargetCount,
	}
	if a.Orchestrator != nil {
		routerOpts.Mutator = a.Orchestrator
	}

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      api.NewRouter(routerOpts),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("starting http server",
			zap.String("addr", cfg.HTTP.Addr),
			zap.String("store", cfg.Store.Backend),
			zap.Bool("writes", a.Orchestrator != nil))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var metricsSrv *http.Server
	if cfg.HTTP.MetricsAddr != "" && cfg.HTTP.MetricsAddr != cfg.HTTP.Addr {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		metricsSrv = &http.Server{Addr: cfg.HTTP.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	var wg sync.WaitGroup
	if cfg.Ledger.WSURL != "" && len(cfg.Watch.Accounts) > 0 {
		closeWatchers, err := startWatchers(ctx, a, &wg)
		if err != nil {
			return err
		}
		defer closeWatchers()
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		return err
	}

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer stop()

	// Second signal forces exit.
	go func() {
		select {
		case <-sigCh:
			logger.Warn("second signal, forcing exit")
			os.Exit(1)
		case <-shutdownCtx.Done():
		}
	}()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	wg.Wait()
	return nil
}

// startWatchers opens one WebSocket connection and runs a watcher per
// configured account. The returned func closes the connection.
func startWatchers(ctx context.Context, a *app.App, wg *sync.WaitGroup) (func(), error) {
	logger := a.Logger.Named("watch")
	ws, err := ledger.NewWSClient(ctx, a.Config.Ledger.WSURL, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("connect ledger ws: %w", err)
	}

	for _, raw := range a.Config.Watch.Accounts {
		w, err := graph.NewWatcher(graph.WatcherOptions{
			Account:    domain.AccountID(raw),
			Subscriber: ws,
			Aggregator: a.Aggregator,
			Progress:   a.Stores.Progress,
			Logger:     logger,
		})
		if err != nil {
			ws.Close()
			return nil, fmt.Errorf("watch %s: %w", raw, err)
		}

		w.OnAccountChanged(func(s *domain.RelationshipSnapshot) {
			logger.Info("account changed",
				zap.String("account", string(s.Account)),
				zap.Int("followers", s.FollowerCount()),
				zap.Int("following", s.FollowingCount()),
				zap.Int("mutual", s.MutualCount()))
		})

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("watcher stopped", zap.String("account", raw), zap.Error(err))
			}
		}()
	}

	return func() { ws.Close() }, nil
}
