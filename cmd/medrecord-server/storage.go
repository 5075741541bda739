package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ehr/medrecord/internal/config"
	"github.com/ehr/medrecord/internal/domain/analytics"
	"github.com/ehr/medrecord/internal/domain/record"
	"github.com/ehr/medrecord/internal/platform/db"
)

// backend bundles what the selected storage driver provides.
type backend struct {
	name      string
	repo      record.Repository
	analytics analytics.Source
	pinger    db.Pinger
	pool      *pgxpool.Pool
	close     func()
}

func openBackend(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*backend, error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, db.PoolConfig{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		})
		if err != nil {
			return nil, err
		}
		logger.Info().Msg("connected to database")
		repo := record.NewPGRepository(pool)
		return &backend{
			name:      config.DriverPostgres,
			repo:      repo,
			analytics: analytics.NewPGSource(pool),
			pinger:    repo,
			pool:      pool,
			close:     pool.Close,
		}, nil

	case config.DriverLevelDB:
		repo, err := record.OpenLevelRepository(cfg.LevelDBPath)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", cfg.LevelDBPath).Msg("opened leveldb store")
		return &backend{
			name:      config.DriverLevelDB,
			repo:      repo,
			analytics: analytics.NewLevelSource(repo),
			pinger:    repo,
			close: func() {
				if err := repo.Close(); err != nil {
					logger.Error().Err(err).Msg("close leveldb store")
				}
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
}
