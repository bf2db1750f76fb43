package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"anypush/internal/apperr"
)

var ErrClosed = errors.New("storage closed")

// Store is the key-value API the settings layer is built on.
//
// Get returns only keys that exist (absent keys are omitted); with no keys it
// returns everything. Set writes all given keys atomically, replacing each
// key's whole value. Implementations are safe for concurrent use.
type Store interface {
	Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error)
	Set(ctx context.Context, items map[string]json.RawMessage) error
	Clear(ctx context.Context) error
	Close() error
}

// Config configures storage.
//
// Driver values:
//   - "memory" (also "" and "none")
//   - "file":   Path is the JSON file
//   - "sqlite": Path is the database file (":memory:" allowed)
//   - "redis":  Redis* fields
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string // hash key; default "anypush:settings"
}

// unavailable tags a backend failure so callers can match apperr.ErrStorageUnavailable.
func unavailable(err error) error {
	return fmt.Errorf("%w: %w", apperr.ErrStorageUnavailable, err)
}
