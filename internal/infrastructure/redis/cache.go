package redisinfra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jiahaoliu666/aws-blog-sub002/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Cache is a thin TTL key/value layer over Redis. Values are opaque bytes;
// callers own serialization. A missing key maps to domain.ErrNotFound so
// services can treat cache expiry and absence uniformly.
type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("cache key %s: %w", key, domain.ErrNotFound)
		}
		return nil, err
	}
	return b, nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// Incr bumps a counter key; used as a namespace version for query caches.
func (c *Cache) Incr(ctx context.Context, key string) error {
	return c.client.Incr(ctx, key).Err()
}
