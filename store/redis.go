package store

import (
	"context"
	"errors"
	"time"

	"github.com/AnandSundar/go-halcache"
	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis-backed implementation of halcache.Store. Expiry is
// left to Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisOption configures a RedisStore
type RedisOption func(*RedisStore)

// WithKeyPrefix namespaces every key, so several caches can share one database
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a new Redis store
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: "halcache:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get retrieves an entry from Redis
func (s *RedisStore) Get(ctx context.Context, key string) (*halcache.CacheEntry, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, halcache.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return decode(data)
}

// Set stores an entry in Redis with TTL. A ttl of zero or less keeps it until deleted.
func (s *RedisStore) Set(ctx context.Context, key string, value *halcache.CacheEntry, ttl time.Duration) error {
	data, err := encode(value, 0)
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}

	return s.client.Set(ctx, s.prefix+key, data, ttl).Err()
}

// Delete removes an entry from Redis
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}
