package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key is absent.
var ErrMiss = errors.New("cache miss")

// Cache namespaces keys on a shared redis client. A nil *Cache is valid and
// behaves as an always-missing cache.
type Cache struct {
	client redis.UniversalClient
}

// FromClient wraps an existing client so the server can share one connection pool.
func FromClient(client redis.UniversalClient) *Cache {
	if client == nil {
		return nil
	}
	return &Cache{client: client}
}

func (c *Cache) Set(ctx context.Context, namespace, key string, value interface{}, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	return c.client.Set(ctx, namespace+":"+key, value, ttl).Err()
}

func (c *Cache) Get(ctx context.Context, namespace, key string) (string, error) {
	if c == nil {
		return "", ErrMiss
	}
	val, err := c.client.Get(ctx, namespace+":"+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return val, err
}

// SetNX stores value only if the key is new and reports whether it did.
func (c *Cache) SetNX(ctx context.Context, namespace, key string, value interface{}, ttl time.Duration) (bool, error) {
	if c == nil {
		return true, nil
	}
	return c.client.SetNX(ctx, namespace+":"+key, value, ttl).Result()
}
