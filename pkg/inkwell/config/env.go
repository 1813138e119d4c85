package config

import (
	"fmt"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// WithEnv applies environment variable overrides.
//
// Environment variable mapping:
//
//	PORT                 - Server port (default: "8080")
//	ENVIRONMENT          - Runtime environment (default: "development")
//	DATABASE_URL         - Connection string. A "postgres://" or
//	                       "postgresql://" URL selects the Postgres
//	                       connector; empty or "memory" keeps the in-memory
//	                       one.
//	DB_SCHEMA            - Postgres schema (default: "inkwell")
//	REDIS_ADDR           - Redis address for the rate limiter; empty means
//	                       local-only counting
//	REDIS_PASSWORD       - Redis password
//	REDIS_DB             - Redis database index
//	UNLOCK_SECRET        - HMAC key for unlock tokens; empty disables the
//	                       password-unlock flow
//	UNLOCK_TTL_SECONDS   - Unlock token lifetime (default: 1800)
//	LOCK_TTL_SECONDS     - Edit lock lifetime (default: 600)
//	POST_TYPES           - Comma-separated allowed post types
//	ENABLE_EVENT_LOGGING - Toggle write event logging
//
// Use programmatic options for anything beyond this.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("read environment: %w", err)
		}
		return normalizeDatabase(c)
	}
}

// normalizeDatabase derives DatabaseType from the URL form.
func normalizeDatabase(c *ServerConfig) error {
	url := c.DatabaseURL
	switch {
	case url == "" || url == "memory":
		c.DatabaseType = "memory"
		c.DatabaseURL = ""
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		c.DatabaseType = "postgres"
	default:
		return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory' or 'postgresql://...')", url)
	}
	return nil
}
