package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/Shivanand-hulikatti/limited-claim/internal/config"
	"github.com/Shivanand-hulikatti/limited-claim/internal/repository"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: " warn ", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "nonsense", want: slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := parseLevel(tc.in); got != tc.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestOpenStore(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		store, err := openStore(ctx, config.Config{Store: config.StoreMemory}, log)
		if err != nil {
			t.Fatalf("openStore: %v", err)
		}
		if _, ok := store.(*repository.MemoryStore); !ok {
			t.Fatalf("store = %T, want *repository.MemoryStore", store)
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := config.Config{Store: config.StoreSQLite, SQLitePath: filepath.Join(t.TempDir(), "claim.db")}
		store, err := openStore(ctx, cfg, log)
		if err != nil {
			t.Fatalf("openStore: %v", err)
		}
		defer store.Close()
		if _, ok := store.(*repository.SQLiteStore); !ok {
			t.Fatalf("store = %T, want *repository.SQLiteStore", store)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if _, err := openStore(ctx, config.Config{Store: "etcd"}, log); err == nil {
			t.Fatal("expected error for unknown store")
		}
	})
}
