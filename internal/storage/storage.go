// Package storage defines the persistence gateway for annotation snapshots.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Load when no snapshot was ever saved under the key.
var ErrNotFound = errors.New("snapshot not found")

// Gateway is a key to blob store for annotation snapshots.
// Save is idempotent and the last write for a key wins; there is no merge.
type Gateway interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)

	// Stats
	Count(ctx context.Context) (int64, error)

	Close() error
}

// Options holds backend settings for Open.
type Options struct {
	Backend      string
	DatabasePath string
	RedisURL     string
	RedisPrefix  string
	SessionID    string
}

// Open returns the gateway for the named backend: sqlite, memory, or redis.
func Open(opts Options) (Gateway, error) {
	switch opts.Backend {
	case "", "sqlite":
		return NewSQLiteGateway(opts.DatabasePath, opts.SessionID)
	case "memory":
		return NewMemoryGateway(), nil
	case "redis":
		return NewRedisGateway(opts.RedisURL, opts.RedisPrefix)
	}
	return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
}
