// Package db owns the Postgres connection pool and the schema migrations.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// ConnectPostgres opens a pool against dsn and verifies it with a ping.
func ConnectPostgres(ctx context.Context, dsn string, logger zerolog.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 15 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logger.Info().
		Str("host", cfg.ConnConfig.Host).
		Str("database", cfg.ConnConfig.Database).
		Int32("max_conns", cfg.MaxConns).
		Msg("connected to postgres")
	return pool, nil
}

// Open connects and brings the schema up to date.
func Open(ctx context.Context, dsn string, logger zerolog.Logger) (*pgxpool.Pool, error) {
	pool, err := ConnectPostgres(ctx, dsn, logger)
	if err != nil {
		return nil, err
	}
	if _, err := Migrate(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
