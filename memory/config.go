package memory

import (
	"context"
	"fmt"
	"time"
)

// Backend names accepted by Config.Backend.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config holds session store initialization parameters.
type Config struct {
	Backend   string `json:"backend,omitempty" yaml:"backend" toml:"backend"`
	Path      string `json:"path,omitempty" yaml:"path" toml:"path"`                // file directory or SQLite database file
	RedisAddr string `json:"redis_addr,omitempty" yaml:"redis_addr" toml:"redis_addr"`
	Namespace string `json:"namespace,omitempty" yaml:"namespace" toml:"namespace"` // key prefix inside the backend
	TTL       string `json:"ttl,omitempty" yaml:"ttl" toml:"ttl"`                   // Redis expiry, e.g. "24h"
}

// DefaultConfig returns the default configuration: a process-scoped
// in-memory store.
func DefaultConfig() Config {
	return Config{Backend: BackendMemory}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Backend != "" {
		c.Backend = source.Backend
	}
	if source.Path != "" {
		c.Path = source.Path
	}
	if source.RedisAddr != "" {
		c.RedisAddr = source.RedisAddr
	}
	if source.Namespace != "" {
		c.Namespace = source.Namespace
	}
	if source.TTL != "" {
		c.TTL = source.TTL
	}
}

// Validate reports configuration that NewStore would reject.
func (c *Config) Validate() error {
	switch c.Backend {
	case "", BackendMemory:
	case BackendFile, BackendSQLite:
		if c.Path == "" {
			return fmt.Errorf("memory backend %q requires a path", c.Backend)
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("memory backend %q requires redis_addr", c.Backend)
		}
		if _, err := c.ttl(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownBackend, c.Backend)
	}
	return nil
}

func (c *Config) ttl() (time.Duration, error) {
	if c.TTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.TTL)
	if err != nil {
		return 0, fmt.Errorf("parsing ttl %q: %w", c.TTL, err)
	}
	return d, nil
}

// NewStore creates a Store from configuration.
func NewStore(ctx context.Context, cfg *Config) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case BackendFile:
		return NewFileStore(cfg.Path), nil
	case BackendSQLite:
		return NewSQLiteStore(cfg.Path)
	case BackendRedis:
		ttl, _ := cfg.ttl()
		return DialRedis(ctx, cfg.RedisAddr, "segurbot:", ttl)
	default:
		return NewMapStore(), nil
	}
}
