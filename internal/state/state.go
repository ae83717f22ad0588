// Package state defines the backends used to persist client state such as the
// session token, the cached profile and OAuth handshake values.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/folio-blog/folioctl/internal/config"
	"github.com/folio-blog/folioctl/internal/logging"
)

// Store is a string key/value store. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the value stored under key; ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Delete removes the given keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
	// Close releases backend resources.
	Close() error
}

const (
	// BackendSQLite persists state to a local SQLite file.
	BackendSQLite = "sqlite"
	// BackendRedis persists state to a Redis instance.
	BackendRedis = "redis"
	// BackendMemory keeps state for the lifetime of the process only.
	BackendMemory = "memory"
)

// Open constructs the durable store described by the state configuration.
func Open(ctx context.Context, cfg config.StateConfig, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = BackendSQLite
	}

	switch backend {
	case BackendSQLite:
		if strings.TrimSpace(cfg.Path) == "" {
			return nil, fmt.Errorf("state.path must be set for sqlite backend")
		}
		store, err := OpenSQLite(ctx, cfg.Path, cfg.Namespace, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return nil, fmt.Errorf("state.redisAddr must be set for redis backend")
		}
		store, err := OpenRedis(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.Namespace,
		}, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported state backend %q", cfg.Backend)
	}
}

// GetJSON decodes the JSON value stored under key into out.
func GetJSON(ctx context.Context, s Store, key string, out any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("decode state key %q: %w", key, err)
	}
	return true, nil
}

// SetJSON stores the JSON encoding of value under key.
func SetJSON(ctx context.Context, s Store, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode state key %q: %w", key, err)
	}
	return s.Set(ctx, key, string(raw))
}
