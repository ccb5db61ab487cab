// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Shivanand-hulikatti/limited-claim/internal/clock"
	"github.com/Shivanand-hulikatti/limited-claim/internal/config"
	"github.com/Shivanand-hulikatti/limited-claim/internal/database"
	"github.com/Shivanand-hulikatti/limited-claim/internal/events"
	"github.com/Shivanand-hulikatti/limited-claim/internal/handler"
	"github.com/Shivanand-hulikatti/limited-claim/internal/repository"
	"github.com/Shivanand-hulikatti/limited-claim/internal/service"
)

// hubQueue is the per-subscriber buffer of the websocket fan-out.
const hubQueue = 64

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	log := newLogger(cfg.LogLevel)
	if err := run(cfg, log); err != nil {
		log.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Open the store ─────────────────────────────────────────────────
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("store.close.fail", "err", err)
		}
	}()
	log.Info("store.ready", "kind", cfg.Store)

	// ── 2. Wire up layers ────────────────────────────────────────────────
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := events.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	recorder := events.NewRecorder(cfg.EventHistory)
	hub := events.NewHub(log, hubQueue)
	bus := events.NewBus(events.NewLogSink(log), recorder, metrics, hub)

	clk := clock.Real()
	svc := service.NewClaimService(store, clk, bus, metrics)
	h := handler.NewClaimHandler(svc, recorder, hub, log)
	auth := handler.NewAuthenticator(clk, cfg.SignatureSkew, cfg.InsecurePrincipals)
	if cfg.InsecurePrincipals {
		log.Warn("auth.insecure", "msg", "X-Principal is trusted without a signature")
	}

	// ── 3. Build the router ───────────────────────────────────────────────
	router := handler.NewRouter(h, auth, log, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	// ── 4. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server.listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("server.shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	log.Info("server.stopped")
	return nil
}

// openStore returns the backend named by cfg.Store with its schema applied.
func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (repository.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return repository.NewMemoryStore(), nil
	case config.StorePostgres:
		pool, err := database.NewPool(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		return repository.NewPostgresStore(pool), nil
	case config.StoreSQLite:
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		return repository.NewSQLiteStore(db), nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogger creates a JSON structured logger and installs it as the default.
func newLogger(level string) *slog.Logger {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(level)}))
	slog.SetDefault(log)
	return log
}
