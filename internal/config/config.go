// Package config handles application configuration loading from environment
// variables. It provides a centralized Config struct used across the application.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Remote store backends.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds all application configuration values loaded from the environment.
type Config struct {
	// Server settings
	Host string
	Port string
	Env  string // "development", "production", "testing"

	// Logging
	LogLevel  string // "debug", "info", "warn", "error"
	LogFormat string // "text", "json"

	// PostgreSQL connection
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Valkey (Redis-compatible cache and change fan-out)
	ValkeyHost     string
	ValkeyPort     string
	ValkeyPassword string
	ValkeyDB       int

	// RemoteBackend selects where the catalog lives: "postgres" or "memory".
	RemoteBackend string

	// Subscription reconnect tuning
	SyncBaseDelay     time.Duration
	SyncMaxDelay      time.Duration
	SyncMaxRetries    int
	SyncStallCooldown time.Duration

	// Feed composition
	FeedPageSize  int
	FeedCacheSize int
	PendingTTL    time.Duration
	AdCacheTTL    time.Duration

	// WriteRateLimit is the number of writes a client may make per minute.
	WriteRateLimit int
}

// Load reads configuration from environment variables, applying defaults
// for development where appropriate. Returns an error if a value is
// malformed or if critical values are missing in production mode.
func Load() (*Config, error) {
	env := envOrDefault("APP_ENV", "development")
	cfg := &Config{
		Host: envOrDefault("APP_HOST", "0.0.0.0"),
		Port: envOrDefault("APP_PORT", "8080"),
		Env:  env,

		LogLevel:  strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(envOrDefault("LOG_FORMAT", defaultLogFormat(env))),

		DBHost:     envOrDefault("POSTGRES_HOST", "localhost"),
		DBPort:     envOrDefault("POSTGRES_PORT", "5432"),
		DBUser:     envOrDefault("POSTGRES_USER", "promptdeck"),
		DBPassword: envOrDefault("POSTGRES_PASSWORD", "changeme"),
		DBName:     envOrDefault("POSTGRES_DB", "promptdeck"),

		ValkeyHost:     envOrDefault("VALKEY_HOST", "localhost"),
		ValkeyPort:     envOrDefault("VALKEY_PORT", "6379"),
		ValkeyPassword: os.Getenv("VALKEY_PASSWORD"),

		RemoteBackend: strings.ToLower(envOrDefault("REMOTE_BACKEND", BackendPostgres)),
	}

	var errs []error
	intVar := func(dst *int, key string, fallback int) {
		v, err := envInt(key, fallback)
		errs = append(errs, err)
		*dst = v
	}
	durVar := func(dst *time.Duration, key string, fallback time.Duration) {
		v, err := envDuration(key, fallback)
		errs = append(errs, err)
		*dst = v
	}

	intVar(&cfg.ValkeyDB, "VALKEY_DB", 0)
	durVar(&cfg.SyncBaseDelay, "SYNC_BASE_DELAY", 250*time.Millisecond)
	durVar(&cfg.SyncMaxDelay, "SYNC_MAX_DELAY", 30*time.Second)
	intVar(&cfg.SyncMaxRetries, "SYNC_MAX_RETRIES", 8)
	durVar(&cfg.SyncStallCooldown, "SYNC_STALL_COOLDOWN", time.Minute)
	intVar(&cfg.FeedPageSize, "FEED_PAGE_SIZE", 20)
	intVar(&cfg.FeedCacheSize, "FEED_CACHE_SIZE", 256)
	durVar(&cfg.PendingTTL, "PENDING_TTL", 2*time.Minute)
	durVar(&cfg.AdCacheTTL, "AD_CACHE_TTL", time.Minute)
	intVar(&cfg.WriteRateLimit, "RATE_LIMIT_WRITES", 60)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	switch cfg.RemoteBackend {
	case BackendPostgres, BackendMemory:
	default:
		return nil, fmt.Errorf("REMOTE_BACKEND must be %q or %q, got %q", BackendPostgres, BackendMemory, cfg.RemoteBackend)
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	if cfg.Env == "production" {
		if cfg.DBPassword == "changeme" {
			return nil, fmt.Errorf("POSTGRES_PASSWORD must be set in production")
		}
	}

	return cfg, nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

// Addr returns the server listen address (host:port).
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDev returns true if the application is running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// NewLogger builds the application logger writing to w, using the
// configured level and format.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func defaultLogFormat(env string) string {
	if env == "development" {
		return "text"
	}
	return "json"
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}

// envOrDefault reads an environment variable, returning a fallback if unset or empty.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt reads a non-negative integer variable.
func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback, fmt.Errorf("%s must be a non-negative integer, got %q", key, v)
	}
	return n, nil
}

// envDuration reads a positive Go duration such as "250ms" or "1m".
func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback, fmt.Errorf("%s must be a positive duration, got %q", key, v)
	}
	return d, nil
}
