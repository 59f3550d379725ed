// Package cache provides project owner caches used by authorization checks.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "timely:project-owner:"

// Noop never caches. It is used when no REDIS_URL is configured.
type Noop struct{}

// Get always misses.
func (Noop) Get(context.Context, string) (string, bool, error) { return "", false, nil }

// Set performs no action.
func (Noop) Set(context.Context, string, string) error { return nil }

// Invalidate performs no action.
func (Noop) Invalidate(context.Context, string) error { return nil }

// RedisOwnerCache stores project owner ids in Redis with a TTL.
type RedisOwnerCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisOwnerCache wraps an existing client.
func NewRedisOwnerCache(client redis.UniversalClient, ttl time.Duration) *RedisOwnerCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisOwnerCache{client: client, ttl: ttl}
}

// Dial parses a redis:// URL, verifies connectivity and returns a cache.
func Dial(ctx context.Context, url string, ttl time.Duration) (*RedisOwnerCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisOwnerCache(client, ttl), nil
}

// Get returns the cached owner of projectID.
func (c *RedisOwnerCache) Get(ctx context.Context, projectID string) (string, bool, error) {
	owner, err := c.client.Get(ctx, keyPrefix+projectID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return owner, true, nil
}

// Set caches the owner of projectID.
func (c *RedisOwnerCache) Set(ctx context.Context, projectID, ownerID string) error {
	return c.client.Set(ctx, keyPrefix+projectID, ownerID, c.ttl).Err()
}

// Invalidate drops the cached owner of projectID.
func (c *RedisOwnerCache) Invalidate(ctx context.Context, projectID string) error {
	return c.client.Del(ctx, keyPrefix+projectID).Err()
}

// Close releases the underlying client.
func (c *RedisOwnerCache) Close() error {
	return c.client.Close()
}
