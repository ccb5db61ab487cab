package repository

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/limited-claim/internal/database"
)

// Integration tests are enabled when CLAIM_DATABASE_URL is set. Each subtest
// gets its own schema, dropped afterwards.

func TestPostgresStore(t *testing.T) {
	raw := strings.TrimSpace(os.Getenv("CLAIM_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: CLAIM_DATABASE_URL is not set")
	}

	runStoreSuite(t, func(t *testing.T) Store {
		t.Helper()
		pool := mustOpenSchemaPool(t, raw)
		return NewPostgresStore(pool)
	})
}

func mustOpenSchemaPool(t *testing.T, raw string) *pgxpool.Pool {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	admin, err := pgxpool.New(ctx, raw)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(admin.Close)

	schema := fmt.Sprintf("claim_test_%d", time.Now().UnixNano())
	if _, err := admin.Exec(ctx, `CREATE SCHEMA `+pgx.Identifier{schema}.Sanitize()); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), `DROP SCHEMA `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
	})

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse CLAIM_DATABASE_URL: %v", err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	// Registered after the schema drop, so it runs first.
	t.Cleanup(pool.Close)

	if err := database.MigratePostgres(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}
