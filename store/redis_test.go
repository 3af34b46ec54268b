package store

import (
	"context"
	"testing"
	"time"

	"github.com/AnandSundar/go-halcache"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a mock Redis server for testing
func setupTestRedis(t *testing.T, opts ...RedisOption) (*RedisStore, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	store := NewRedisStore(client, opts...)

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return store, mr
}

func TestRedisStore_Contract(t *testing.T) {
	store, _ := setupTestRedis(t)
	storeContract(t, store)
}

func TestRedisStore_Expiration(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	err := store.Set(ctx, "test-key", testEntry("https://rest.api/core/items/1"), 100*time.Millisecond)
	require.NoError(t, err)

	// Fast-forward time in miniredis
	mr.FastForward(150 * time.Millisecond)

	_, err = store.Get(ctx, "test-key")
	assert.ErrorIs(t, err, halcache.ErrNotFound)
}

func TestRedisStore_NoExpiryHasNoTTL(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "forever", testEntry("https://rest.api/core/items/1"), 0))

	assert.Equal(t, time.Duration(0), mr.TTL("halcache:forever"))
	mr.FastForward(24 * time.Hour)

	_, err := store.Get(ctx, "forever")
	assert.NoError(t, err)
}

func TestRedisStore_KeyPrefix(t *testing.T) {
	store, mr := setupTestRedis(t, WithKeyPrefix("dspace:"))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "object:https://rest.api/core/items/1", testEntry("https://rest.api/core/items/1"), time.Hour))

	assert.True(t, mr.Exists("dspace:object:https://rest.api/core/items/1"))
	assert.False(t, mr.Exists("halcache:object:https://rest.api/core/items/1"))
}

func TestRedisStore_CorruptValue(t *testing.T) {
	store, mr := setupTestRedis(t)

	require.NoError(t, mr.Set("halcache:broken", "not json"))

	_, err := store.Get(context.Background(), "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, halcache.ErrNotFound)
}

// TestRedisStore_RealRedis tests against a real Redis instance
// Skip this test if Redis is not available
func TestRedisStore_RealRedis(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping real Redis test in short mode")
	}

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
	})
	defer client.Close()

	// Ping to check if Redis is available
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available:", err)
	}

	store := NewRedisStore(client, WithKeyPrefix("test:real-redis:"+time.Now().Format("20060102150405")+":"))

	err := store.Set(ctx, "key", testEntry("https://rest.api/core/items/1"), 10*time.Second)
	require.NoError(t, err)

	cached, err := store.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "https://rest.api/core/items/1", cached.Href)

	// Cleanup
	require.NoError(t, store.Delete(ctx, "key"))
}
