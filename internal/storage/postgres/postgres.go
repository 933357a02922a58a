// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Expected schema:
//
//	CREATE TABLE products (
//	    id UUID PRIMARY KEY,
//	    sku TEXT NOT NULL UNIQUE,
//	    url TEXT NOT NULL,
//	    msrp NUMERIC(10,2),
//	    created_at TIMESTAMPTZ NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL
//	);
//
//	CREATE TABLE availability (
//	    id UUID PRIMARY KEY,
//	    product_id UUID NOT NULL REFERENCES products (id),
//	    province TEXT NOT NULL,
//	    location TEXT NOT NULL,
//	    quantity INT NOT NULL DEFAULT 0,
//	    first_observed_at TIMESTAMPTZ NOT NULL,
//	    last_observed_at TIMESTAMPTZ NOT NULL,
//	    UNIQUE (product_id, province, location)
//	);
//
//	CREATE TABLE scrape_jobs (
//	    id UUID PRIMARY KEY,
//	    status TEXT NOT NULL,
//	    started_at TIMESTAMPTZ NOT NULL,
//	    completed_at TIMESTAMPTZ,
//	    records_updated INT NOT NULL DEFAULT 0,
//	    error_message TEXT
//	);

// Pool is the slice of pgxpool.Pool the stores use; pgxmock satisfies it in
// tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Config controls the shared connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Connect builds the shared pgx pool used by all three stores.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)
