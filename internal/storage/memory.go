package storage

import (
	"context"
	"fmt"

	"github.com/patrickmn/go-cache"
)

// MemoryGateway keeps snapshots in process memory. Used for development and tests.
type MemoryGateway struct {
	cache *cache.Cache
}

// NewMemoryGateway returns an empty in-memory gateway. Entries never expire.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{cache: cache.New(cache.NoExpiration, 0)}
}

// Save stores a copy of data under key.
func (m *MemoryGateway) Save(_ context.Context, key string, data []byte) error {
	m.cache.Set(key, append([]byte(nil), data...), cache.NoExpiration)
	return nil
}

// Load returns a copy of the data stored under key.
func (m *MemoryGateway) Load(_ context.Context, key string) ([]byte, error) {
	x, found := m.cache.Get(key)
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return append([]byte(nil), x.([]byte)...), nil
}

// Count returns the number of stored snapshots.
func (m *MemoryGateway) Count(_ context.Context) (int64, error) {
	return int64(m.cache.ItemCount()), nil
}

func (m *MemoryGateway) Close() error {
	m.cache.Flush()
	return nil
}
