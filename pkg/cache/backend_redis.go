package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Ensure RedisBackend implements Backend
var _ Backend = (*RedisBackend)(nil)

// RedisBackend stores persisted namespaces as Redis string values.
type RedisBackend struct {
	redis  *redis.Client
	prefix string

	// Expiration is applied to every saved namespace (0 = no expiration)
	Expiration time.Duration
}

// NewRedisBackend creates a backend on an existing Redis client.
func NewRedisBackend(redisClient *redis.Client) *RedisBackend {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisBackend{
		redis:  redisClient,
		prefix: "storefront:cache:",
	}
}

// Key returns the Redis key holding namespace.
func (b *RedisBackend) Key(namespace string) string {
	return b.prefix + namespace
}

// Load returns the namespace blob or ErrCacheMiss.
func (b *RedisBackend) Load(ctx context.Context, namespace string) ([]byte, error) {
	data, err := b.redis.Get(ctx, b.Key(namespace)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

// Save replaces the namespace blob.
func (b *RedisBackend) Save(ctx context.Context, namespace string, payload []byte) error {
	if err := b.redis.Set(ctx, b.Key(namespace), payload, b.Expiration).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
