package infra

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cyberella/handson/internal/identity"
	"github.com/cyberella/handson/internal/migrations"
)

// NewPostgresPool configures and returns a PostgreSQL connection pool.
func NewPostgresPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, fmt.Errorf("database url is required")
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

// OpenIdentityStore returns a Postgres-backed store when url is set, applying
// migrations first if migrate is true. Without a url it falls back to the
// in-memory store and a nil pool.
func OpenIdentityStore(ctx context.Context, url string, migrate bool, logger *slog.Logger) (identity.Store, *pgxpool.Pool, error) {
	if url == "" {
		logger.Warn("DATABASE_URL not set, using in-memory identity store")
		return identity.NewMemoryStore(), nil, nil
	}

	pool, err := NewPostgresPool(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	if migrate {
		if err := migrations.Up(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("database migrations applied")
	}
	return identity.NewPostgresStore(pool), pool, nil
}
