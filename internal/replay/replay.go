// Package replay remembers callback deliveries that were already applied so
// re-deliveries can be acknowledged without touching the record store.
//
// The record store's status guard is the source of truth; this cache is a
// fast path only and callers treat its errors as a miss.
package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces replay keys.
const KeyPrefix = "talent:replay:"

// DefaultTTL is how long an applied delivery is remembered.
const DefaultTTL = 24 * time.Hour

// RedisCache stores delivery markers in Redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// Connect parses a redis:// URL and checks the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis unavailable at %s: %w", opts.Addr, err)
	}
	return client, nil
}

// NewRedisCache wraps client. A non-positive ttl selects DefaultTTL.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Seen reports whether key was marked.
func (c *RedisCache) Seen(ctx context.Context, key string) (bool, error) {
	err := c.client.Get(ctx, KeyPrefix+key).Err()
	if err == nil {
		return true, nil
	}
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	return false, fmt.Errorf("failed to read replay marker: %w", err)
}

// Mark records key until the TTL expires.
func (c *RedisCache) Mark(ctx context.Context, key string) error {
	if err := c.client.Set(ctx, KeyPrefix+key, "1", c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write replay marker: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
