package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper runs fn at most once per key within ttl.
type Deduper interface {
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) (ran bool, err error)
}

// RedisDeduper keeps "already sent" markers in Redis.
type RedisDeduper struct {
	client *redis.Client
}

// NewRedisDeduper wraps a Redis client.
func NewRedisDeduper(client *redis.Client) *RedisDeduper {
	return &RedisDeduper{client: client}
}

// Once claims key with SETNX and runs fn; the claim is released when fn fails.
func (d *RedisDeduper) Once(ctx context.Context, key string, ttl time.Duration, fn func() error) (bool, error) {
	ok, err := d.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := fn(); err != nil {
		_ = d.client.Del(ctx, key).Err()
		return true, err
	}
	return true, nil
}

// Close releases the Redis connection pool.
func (d *RedisDeduper) Close() error {
	return d.client.Close()
}

var _ Deduper = (*RedisDeduper)(nil)
