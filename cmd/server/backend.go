package main

import (
	"context"
	"errors"
	"fmt"

	"docgate/internal/config"
	"docgate/internal/domain/data"
	"docgate/internal/domain/eligibility"
	"docgate/internal/domain/schema"
	"docgate/internal/infrastructure/fixtures"
	"docgate/internal/infrastructure/storage/memory"
	"docgate/internal/infrastructure/storage/mongo"
	"docgate/internal/infrastructure/storage/postgres"
	"docgate/pkg/logger"
)

// backend bundles the storage collaborators of one backend.
type backend struct {
	name        string
	store       data.Store
	eligibility eligibility.Provider
	schemas     schema.Source

	// listen starts change notifications, when the backend has them.
	listen func(ctx context.Context, handler postgres.ChangeHandler) (stop func())
	close  func()
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
		pool, err := postgres.NewPool(ctx, poolCfg)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return &backend{
			name:        "postgres",
			store:       postgres.NewStore(pool),
			eligibility: postgres.NewEligibility(pool),
			schemas:     postgres.NewSchemas(pool),
			listen: func(ctx context.Context, handler postgres.ChangeHandler) func() {
				l := postgres.NewListener(pool.Pool, handler)
				l.Start(ctx)
				return l.Stop
			},
			close: func() {
				pool.LogStats(context.Background())
				pool.Close()
			},
		}, nil

	case config.BackendMongo:
		db, err := mongo.Connect(ctx, mongo.Config{URI: cfg.MongoURI, Database: cfg.MongoDatabase})
		if err != nil {
			return nil, err
		}
		if err := mongo.EnsureIndexes(ctx, db); err != nil {
			_ = mongo.Disconnect(db)
			return nil, err
		}
		return &backend{
			name:        "mongo",
			store:       mongo.NewStore(db),
			eligibility: mongo.NewEligibility(db),
			schemas:     mongo.NewSchemas(db),
			close: func() {
				if err := mongo.Disconnect(db); err != nil {
					logger.Warn(context.Background(), "mongodb disconnect failed", "error", err)
				}
			},
		}, nil

	case config.BackendMemory:
		store := memory.New()
		if cfg.FixturesPath != "" {
			file, err := fixtures.Load(cfg.FixturesPath)
			if err != nil {
				return nil, err
			}
			store = memory.FromFixtures(file)
			logger.Info(ctx, "memory backend loaded", "path", cfg.FixturesPath, "types", file.Types())
		}
		return &backend{
			name:        "memory",
			store:       store,
			eligibility: store,
			schemas:     store,
			close:       func() {},
		}, nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// errNoListener is reported when the backend has no change notifications;
// caches then rely on their TTL alone.
var errNoListener = errors.New("backend has no change notifications")

func (b *backend) startListener(ctx context.Context, handler postgres.ChangeHandler) (func(), error) {
	if b.listen == nil {
		return func() {}, errNoListener
	}
	return b.listen(ctx, handler), nil
}
