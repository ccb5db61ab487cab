// Package config loads runtime settings from the environment, an optional
// .env file, and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Storage backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Postgres holds PostgreSQL connection settings.
type Postgres struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	// URL, when set, takes precedence over the discrete fields.
	URL      string
	MaxConns int32
	MinConns int32
}

// DSN builds a libpq-compatible connection string.
func (c Postgres) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Config contains all runtime configuration.
type Config struct {
	Addr     string
	LogLevel string

	Store      string
	Postgres   Postgres
	SQLitePath string

	// InsecurePrincipals trusts X-Principal without a signature. Dev only.
	InsecurePrincipals bool
	// SignatureSkew bounds how far X-Timestamp may drift from the server clock.
	SignatureSkew time.Duration

	EventHistory    int
	ShutdownTimeout time.Duration

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Load reads .env (if present), then the environment, then args.
func Load(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		Addr:     ":" + getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Store:    getEnv("STORE", StoreMemory),
		Postgres: Postgres{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "limitedclaim"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 20)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 2)),
		},
		SQLitePath:         getEnv("SQLITE_PATH", "limitedclaim.db"),
		InsecurePrincipals: getEnvBool("INSECURE_PRINCIPALS", false),
		SignatureSkew:      getEnvDuration("SIGNATURE_SKEW", 5*time.Minute),
		EventHistory:       getEnvInt("EVENT_HISTORY", 256),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       15 * time.Second,
		IdleTimeout:        60 * time.Second,
	}

	flags := pflag.NewFlagSet("limited-claim", pflag.ContinueOnError)
	flags.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flags.StringVar(&cfg.Store, "store", cfg.Store, "storage backend (memory, postgres, sqlite)")
	flags.StringVar(&cfg.Postgres.URL, "database-url", cfg.Postgres.URL, "PostgreSQL connection URL")
	flags.StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "SQLite database file")
	flags.BoolVar(&cfg.InsecurePrincipals, "insecure-principals", cfg.InsecurePrincipals, "trust X-Principal without a signature")
	flags.DurationVar(&cfg.SignatureSkew, "signature-skew", cfg.SignatureSkew, "allowed clock skew for signed requests")
	flags.IntVar(&cfg.EventHistory, "event-history", cfg.EventHistory, "events kept per counter for the audit feed")
	if err := flags.Parse(args); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory, StorePostgres, StoreSQLite:
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.Store == StoreSQLite && strings.TrimSpace(c.SQLitePath) == "" {
		return errors.New("sqlite store requires a path")
	}
	if c.EventHistory < 0 {
		return errors.New("event history must not be negative")
	}
	if c.SignatureSkew <= 0 {
		return errors.New("signature skew must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}
