package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "evalui:snapshot:"

// RedisGateway stores snapshots as plain Redis strings under prefix+key.
type RedisGateway struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisGateway connects to the Redis server at url and verifies it with a ping.
func NewRedisGateway(url, prefix string) (*RedisGateway, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisGateway{rdb: rdb, prefix: prefix}, nil
}

func (g *RedisGateway) Save(ctx context.Context, key string, data []byte) error {
	if err := g.rdb.Set(ctx, g.prefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("save snapshot %s: %w", key, err)
	}
	return nil
}

func (g *RedisGateway) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := g.rdb.Get(ctx, g.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", key, err)
	}
	return data, nil
}

// Count scans the keyspace for keys under the gateway prefix.
func (g *RedisGateway) Count(ctx context.Context) (int64, error) {
	var (
		cursor uint64
		total  int64
	)
	for {
		keys, next, err := g.rdb.Scan(ctx, cursor, g.prefix+"*", 500).Result()
		if err != nil {
			return 0, err
		}
		total += int64(len(keys))
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}

func (g *RedisGateway) Close() error {
	return g.rdb.Close()
}
