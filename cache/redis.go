// Package cache provides bridge.HandoffCache implementations backed by Redis
// and by process memory.
package cache

import (
	"context"
	"errors"
	"time"

	bridge "github.com/goliatone/go-auth-bridge"
	"github.com/redis/go-redis/v9"
)

// RedisCache stores values in Redis. Take uses GETDEL so a value is handed
// out at most once even with several bridge instances.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

var _ bridge.HandoffCache = (*RedisCache)(nil)

type RedisOption func(*RedisCache)

// WithKeyPrefix namespaces every key.
func WithKeyPrefix(prefix string) RedisOption {
	return func(c *RedisCache) {
		c.prefix = prefix
	}
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client redis.UniversalClient, opts ...RedisOption) *RedisCache {
	c := &RedisCache{client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// DialRedis connects using the bridge configuration and pings the server.
func DialRedis(ctx context.Context, cfg bridge.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedisCache(client, WithKeyPrefix(cfg.Prefix)), nil
}

func (c *RedisCache) key(key string) string {
	return c.prefix + key
}

// Set implements bridge.HandoffCache.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("cache: ttl must be positive")
	}
	return c.client.Set(ctx, c.key(key), value, ttl).Err()
}

// Take implements bridge.HandoffCache.
func (c *RedisCache) Take(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := c.client.GetDel(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Close releases the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
