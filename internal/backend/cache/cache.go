// Package cache provides a best-effort byte cache in front of the file
// store, used when serving rendition files. Cache failures are logged and
// treated as misses; the file store stays the source of truth.
package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "rendition:"

// RenditionCache caches encoded rendition bytes by storage location.
type RenditionCache interface {
	Get(ctx context.Context, location string) ([]byte, bool)
	Set(ctx context.Context, location string, data []byte)
	Invalidate(ctx context.Context, locations ...string)
}

// RedisCache backs the cache with a redis instance.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(addr string, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

func (c *RedisCache) Get(ctx context.Context, location string) ([]byte, bool) {
	data, err := c.client.Get(ctx, keyPrefix+location).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.Warn("rendition cache read failed", "location", location, "error", err)
		return nil, false
	}
	return data, true
}

func (c *RedisCache) Set(ctx context.Context, location string, data []byte) {
	if err := c.client.Set(ctx, keyPrefix+location, data, c.ttl).Err(); err != nil {
		slog.Warn("rendition cache write failed", "location", location, "error", err)
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, locations ...string) {
	keys := make([]string, len(locations))
	for i, location := range locations {
		keys[i] = keyPrefix + location
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		slog.Warn("rendition cache invalidation failed", "error", err)
	}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// NopCache is used when caching is disabled in the configuration.
type NopCache struct{}

func (NopCache) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (NopCache) Set(context.Context, string, []byte)        {}
func (NopCache) Invalidate(context.Context, ...string)      {}
