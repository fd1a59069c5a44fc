// Package postgres opens the two connection flavours the stores use: a pgx
// pool for snapshot payloads and a sqlx handle (lib/pq driver) for the
// entity registry.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"tally/internal/platform/config"
)

// NewPool opens a pgx pool. Returns nil if the URL is empty (Postgres not
// configured).
func NewPool(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("open pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return pool, nil
}

// OpenSQLX opens a sqlx handle on the lib/pq driver. Returns nil if the URL
// is empty.
func OpenSQLX(ctx context.Context, cfg config.PostgresConfig) (*sqlx.DB, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(int(cfg.MaxConns))
	}
	return db, nil
}
