package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"social-graph-lab/internal/config"
	"social-graph-lab/internal/storage"
	chstore "social-graph-lab/internal/storage/clickhouse"
	"social-graph-lab/internal/storage/memory"
	"social-graph-lab/internal/storage/migrations"
	pgstore "social-graph-lab/internal/storage/postgres"
	"social-graph-lab/internal/storage/sqlite"
)

// Stores holds the persistence backends selected by configuration.
type Stores struct {
	Snapshots storage.SnapshotStore
	Progress  storage.WatchProgressStore
	// Migrated lists migration files applied while opening, if any.
	Migrated  []string
	close     func()
}

// Close releases backend connections.
func (s *Stores) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenStores connects the configured backend, running migrations first when
// cfg.AutoMigrate is set. Backends without a progress table keep watcher
// progress in memory.
func OpenStores(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (*Stores, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Backend {
	case "", "memory":
		return &Stores{
			Snapshots: memory.NewSnapshotStore(),
			Progress:  memory.NewWatchProgressStore(),
			close:     func() {},
		}, nil

	case "postgres":
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		var applied []string
		if cfg.AutoMigrate {
			applied, err = migrations.RunPostgresMigrations(ctx, pool)
			if err != nil {
				pool.Close()
				return nil, fmt.Errorf("postgres migrations: %w", err)
			}
			logger.Info("postgres migrations applied", zap.Strings("files", applied))
		}
		return &Stores{
			Snapshots: pgstore.NewSnapshotStore(pool),
			Progress:  pgstore.NewWatchProgressStore(pool),
			Migrated:  applied,
			close:     pool.Close,
		}, nil

	case "clickhouse":
		if cfg.AutoMigrate {
			if err := chstore.EnsureDatabase(ctx, cfg.ClickhouseDSN); err != nil {
				return nil, err
			}
		}
		conn, err := chstore.NewConn(ctx, cfg.ClickhouseDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		var applied []string
		if cfg.AutoMigrate {
			applied, err = migrations.RunClickhouseMigrations(ctx, conn)
			if err != nil {
				conn.Close()
				return nil, fmt.Errorf("clickhouse migrations: %w", err)
			}
			logger.Info("clickhouse migrations applied", zap.Strings("files", applied))
		}
		return &Stores{
			Snapshots: chstore.NewSnapshotStore(conn),
			Progress:  memory.NewWatchProgressStore(),
			Migrated:  applied,
			close:     func() { conn.Close() },
		}, nil

	case "sqlite":
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return &Stores{
			Snapshots: store,
			Progress:  memory.NewWatchProgressStore(),
			Migrated:  store.Migrated(),
			close:     func() { store.Close() },
		}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
