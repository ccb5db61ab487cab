// Package database provides PostgreSQL (pgx) and SQLite connection management
// and the schema both backends share.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "modernc.org/sqlite"

	"github.com/Shivanand-hulikatti/limited-claim/internal/config"
)

// NewPool creates and validates a pgxpool connection pool, then applies the
// schema. It retries up to 5 times to accommodate containers starting up.
func NewPool(ctx context.Context, cfg config.Postgres, log *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns >= 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	var pool *pgxpool.Pool
	for attempt := 1; attempt <= 5; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				break
			}
			pool.Close()
		}
		log.Warn("db connect attempt failed", "attempt", attempt, "max", 5, "err", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := MigratePostgres(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// MigratePostgres creates all tables. Safe to call multiple times.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create postgres schema: %w", err)
	}
	return nil
}

// OpenSQLite opens (creating if needed) the SQLite database at path and
// applies the schema. The handle is limited to one connection so write
// transactions are serialised by the pool itself.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	return db, nil
}

// Amounts are NUMERIC(20,0) so the full uint64 range round-trips.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS counters (
    id          UUID PRIMARY KEY,
    admin       TEXT NOT NULL UNIQUE,
    capacity    NUMERIC(20,0) NOT NULL CHECK (capacity >= 0),
    start_time  TIMESTAMPTZ NOT NULL,
    remaining   NUMERIC(20,0) NOT NULL CHECK (remaining >= 0 AND remaining <= capacity),
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS receipts (
    id          UUID PRIMARY KEY,
    counter_id  UUID NOT NULL REFERENCES counters(id),
    claimer     TEXT NOT NULL,
    claimed_at  TIMESTAMPTZ NOT NULL,
    deposit     NUMERIC(20,0) NOT NULL,
    UNIQUE (counter_id, claimer)
);

CREATE INDEX IF NOT EXISTS idx_receipts_counter_id ON receipts(counter_id);

CREATE TABLE IF NOT EXISTS account_credits (
    principal   TEXT PRIMARY KEY,
    amount      NUMERIC(20,0) NOT NULL DEFAULT 0
);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS counters (
    id          TEXT PRIMARY KEY,
    admin       TEXT NOT NULL UNIQUE,
    capacity    TEXT NOT NULL,
    start_time  INTEGER NOT NULL,
    remaining   TEXT NOT NULL,
    created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS receipts (
    id          TEXT PRIMARY KEY,
    counter_id  TEXT NOT NULL REFERENCES counters(id),
    claimer     TEXT NOT NULL,
    claimed_at  INTEGER NOT NULL,
    deposit     TEXT NOT NULL,
    UNIQUE (counter_id, claimer)
);

CREATE INDEX IF NOT EXISTS idx_receipts_counter_id ON receipts(counter_id);

CREATE TABLE IF NOT EXISTS account_credits (
    principal   TEXT PRIMARY KEY,
    amount      TEXT NOT NULL
);
`
