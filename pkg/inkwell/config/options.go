package config

import (
	"fmt"
	"strings"
)

// WithPort sets the server port.
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing).
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the database backend.
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		if dbType != "memory" && dbType != "postgres" {
			return fmt.Errorf("database type must be 'memory' or 'postgres', got: %s", dbType)
		}
		if dbType == "postgres" && url == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres).
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithRedis configures the rate limiter's Redis backend.
func WithRedis(addr, password string, db int) Option {
	return func(c *ServerConfig) error {
		if addr == "" {
			return fmt.Errorf("redis addr cannot be empty")
		}
		c.RedisAddr = addr
		c.RedisPassword = password
		c.RedisDB = db
		return nil
	}
}

// WithUnlockSecret configures the unlock token signing key.
func WithUnlockSecret(secret string) Option {
	return func(c *ServerConfig) error {
		if secret == "" {
			return fmt.Errorf("unlock secret cannot be empty")
		}
		c.UnlockSecret = secret
		return nil
	}
}

// WithUnlockTTL sets the unlock token lifetime in seconds.
func WithUnlockTTL(seconds int) Option {
	return func(c *ServerConfig) error {
		if seconds <= 0 {
			return fmt.Errorf("unlock TTL must be positive, got: %d", seconds)
		}
		c.UnlockTTLSeconds = seconds
		return nil
	}
}

// WithLockTTL sets the edit lock lifetime in seconds.
func WithLockTTL(seconds int) Option {
	return func(c *ServerConfig) error {
		if seconds <= 0 {
			return fmt.Errorf("lock TTL must be positive, got: %d", seconds)
		}
		c.LockTTLSeconds = seconds
		return nil
	}
}

// WithPostTypes overrides the allowed post type set.
func WithPostTypes(postTypes ...string) Option {
	return func(c *ServerConfig) error {
		for _, pt := range postTypes {
			if strings.TrimSpace(pt) == "" {
				return fmt.Errorf("post type cannot be empty")
			}
		}
		c.PostTypes = postTypes
		return nil
	}
}

// WithEventLogging enables or disables write event logging.
func WithEventLogging(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableEventLogging = enabled
		return nil
	}
}
