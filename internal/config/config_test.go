package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("STORE", "")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q, want :8080", cfg.Addr)
	}
	if cfg.Store != StoreMemory {
		t.Errorf("Store = %q, want %q", cfg.Store, StoreMemory)
	}
	if cfg.SignatureSkew != 5*time.Minute {
		t.Errorf("SignatureSkew = %v", cfg.SignatureSkew)
	}
	if got := cfg.Postgres.DSN(); got != "host=localhost port=5432 user=postgres password=postgres dbname=limitedclaim sslmode=disable" {
		t.Errorf("DSN() = %q", got)
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("STORE", StoreSQLite)
	t.Setenv("EVENT_HISTORY", "10")

	cfg, err := Load([]string{"--store", StorePostgres, "--database-url", "postgres://u@h/db", "--event-history", "3"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store != StorePostgres {
		t.Errorf("Store = %q, want %q", cfg.Store, StorePostgres)
	}
	if cfg.EventHistory != 3 {
		t.Errorf("EventHistory = %d, want 3", cfg.EventHistory)
	}
	if cfg.Postgres.DSN() != "postgres://u@h/db" {
		t.Errorf("DSN() = %q", cfg.Postgres.DSN())
	}
}

func TestEnvParsing(t *testing.T) {
	t.Setenv("INSECURE_PRINCIPALS", "true")
	t.Setenv("SIGNATURE_SKEW", "30s")
	t.Setenv("DB_MAX_CONNS", "not-a-number")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.InsecurePrincipals {
		t.Error("InsecurePrincipals = false, want true")
	}
	if cfg.SignatureSkew != 30*time.Second {
		t.Errorf("SignatureSkew = %v, want 30s", cfg.SignatureSkew)
	}
	if cfg.Postgres.MaxConns != 20 {
		t.Errorf("MaxConns = %d, want fallback 20", cfg.Postgres.MaxConns)
	}
}

func TestValidate(t *testing.T) {
	if _, err := Load([]string{"--store", "redis"}); err == nil {
		t.Fatal("expected error for unknown store")
	}
	if _, err := Load([]string{"--store", StoreSQLite, "--sqlite-path", " "}); err == nil {
		t.Fatal("expected error for empty sqlite path")
	}
	if _, err := Load([]string{"--bogus"}); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}
