package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lhildreth66/Routecast2-sub001/internal/config"
)

// applicationName tags advisory sessions in pg_stat_activity.
const applicationName = "routecast-advisor"

// NewPool opens the trip registry pool and checks connectivity. parallelism
// is the number of trips a tick evaluates at once.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, parallelism int) (*pgxpool.Pool, error) {
	poolConfig, err := PoolConfig(cfg, parallelism)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping trip registry: %w", err)
	}
	return pool, nil
}

// PoolConfig derives pool settings. A tick pins one connection for the
// advisory lock while every in-flight trip may hold another for its update,
// so MaxConns never drops below parallelism+2.
func PoolConfig(cfg config.DatabaseConfig, parallelism int) (*pgxpool.Config, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if floor := int32(max(parallelism, 1) + 2); poolConfig.MaxConns < floor {
		poolConfig.MaxConns = floor
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = min(int32(cfg.MaxIdleConns), poolConfig.MaxConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if _, ok := poolConfig.ConnConfig.RuntimeParams["application_name"]; !ok {
		poolConfig.ConnConfig.RuntimeParams["application_name"] = applicationName
	}

	return poolConfig, nil
}
