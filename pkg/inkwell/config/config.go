// Package config builds a fully wired content service from declarative
// configuration. Programmatic options layer on top of library defaults; see
// WithEnv for the environment variable mapping.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/inkwell-cms/inkwell/pkg/inkwell"
	"github.com/inkwell-cms/inkwell/pkg/inkwell/ratelimit"
	"github.com/inkwell-cms/inkwell/pkg/inkwell/repo/memory"
	repopg "github.com/inkwell-cms/inkwell/pkg/inkwell/repo/postgres"
	"github.com/inkwell-cms/inkwell/pkg/inkwell/unlock"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of
// library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:               "8080",
		Environment:        "development",
		DatabaseType:       "memory",
		DBSchema:           "inkwell",
		LockTTLSeconds:     600,
		UnlockTTLSeconds:   1800,
		EnableEventLogging: true,
	}
}

// ServerConfig represents server configuration for the content service.
// The cleanenv tags drive WithEnv; programmatic options override them.
type ServerConfig struct {
	Port        string `env:"PORT"`
	Environment string `env:"ENVIRONMENT"` // development, production, testing

	// Database configuration
	DatabaseURL  string `env:"DATABASE_URL"`
	DatabaseType string // "memory", "postgres"; auto-detected from DatabaseURL
	DBSchema     string `env:"DB_SCHEMA"`

	// Redis configuration for the rate limiter. Empty addr means the
	// limiter runs on its local fallback counters only.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB"`

	// Unlock token signing. An empty secret disables the password-unlock
	// flow entirely.
	UnlockSecret     string `env:"UNLOCK_SECRET"`
	UnlockTTLSeconds int    `env:"UNLOCK_TTL_SECONDS"`

	// Service behavior
	LockTTLSeconds     int      `env:"LOCK_TTL_SECONDS"`
	PostTypes          []string `env:"POST_TYPES"` // comma-separated; empty keeps the built-in set
	EnableEventLogging bool     `env:"ENABLE_EVENT_LOGGING"`
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}
	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}
	if c.LockTTLSeconds <= 0 {
		return errors.New("lock_ttl_seconds must be positive")
	}
	if c.UnlockTTLSeconds <= 0 {
		return errors.New("unlock_ttl_seconds must be positive")
	}
	return nil
}

// BuildService creates a Service instance from the server configuration.
func (c *ServerConfig) BuildService(logger *slog.Logger) (inkwell.Service, error) {
	connector, err := c.BuildConnector()
	if err != nil {
		return nil, fmt.Errorf("failed to build connector: %w", err)
	}

	options := []inkwell.Option{
		inkwell.WithConnector(connector),
		inkwell.WithLockTTL(time.Duration(c.LockTTLSeconds) * time.Second),
	}
	if logger != nil {
		options = append(options, inkwell.WithLogger(logger))
	}
	if len(c.PostTypes) > 0 {
		options = append(options, inkwell.WithPostTypes(c.PostTypes...))
	}
	if c.EnableEventLogging && logger != nil {
		options = append(options, inkwell.WithEventSink(inkwell.SlogSink(logger)))
	}

	return inkwell.New(options...)
}

// BuildConnector creates a Connector based on the configuration.
func (c *ServerConfig) BuildConnector() (inkwell.Connector, error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), nil
	case "postgres":
		if c.DatabaseURL == "" {
			return nil, errors.New("database_url is required for postgres")
		}
		cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		schema := c.DBSchema
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			if schema == "" {
				return nil
			}
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schema))
			return err
		}
		pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		return repopg.NewWithPool(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// BuildLimiter creates the rate limiter. With a Redis address configured the
// limiter counts in Redis and falls back to local counters when Redis is
// unreachable; without one it runs local-only from the start.
func (c *ServerConfig) BuildLimiter(logger *slog.Logger) *ratelimit.Limiter {
	opts := []ratelimit.LimiterOption{}
	if logger != nil {
		opts = append(opts, ratelimit.WithLogger(logger))
	}
	if c.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		})
		opts = append(opts, ratelimit.WithRedis(rdb))
	}
	return ratelimit.New(opts...)
}

// BuildSigner creates the unlock token signer, or nil when no secret is
// configured.
func (c *ServerConfig) BuildSigner() (*unlock.Signer, error) {
	if c.UnlockSecret == "" {
		return nil, nil
	}
	return unlock.New([]byte(c.UnlockSecret),
		unlock.WithTTL(time.Duration(c.UnlockTTLSeconds)*time.Second))
}

// PingPostgres verifies connectivity to Postgres and optionally sets
// search_path for the session. It fails if the schema (when provided) does
// not exist.
func PingPostgres(databaseURL, schema string) error {
	if databaseURL == "" {
		return errors.New("database_url is required")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schema))
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to create pgx pool: %w", err)
	}
	defer pool.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
