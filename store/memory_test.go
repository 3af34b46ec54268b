package store

import (
	"context"
	"testing"
	"time"

	"github.com/AnandSundar/go-halcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	storeContract(t, store)
}

func TestMemoryStore_Expiration(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	err := store.Set(ctx, "test-key", testEntry("https://rest.api/core/items/1"), 100*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(150 * time.Millisecond)

	_, err = store.Get(ctx, "test-key")
	assert.ErrorIs(t, err, halcache.ErrNotFound)
}

func TestMemoryStore_EvictExpired(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "short", testEntry("https://rest.api/core/items/1"), time.Millisecond))
	require.NoError(t, store.Set(ctx, "long", testEntry("https://rest.api/core/items/2"), time.Hour))
	require.NoError(t, store.Set(ctx, "forever", testEntry("https://rest.api/core/items/3"), 0))

	store.evictExpired(time.Now().Add(time.Minute))

	assert.Equal(t, 2, store.Len())
	_, err := store.Get(ctx, "long")
	assert.NoError(t, err)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	entry := testEntry("https://rest.api/core/items/1")
	require.NoError(t, store.Set(ctx, "key", entry, time.Hour))

	entry.RequestUUIDs[0] = "mutated"
	cached, err := store.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "req-2", cached.RequestUUIDs[0])

	cached.RequestUUIDs[0] = "mutated"
	again, err := store.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "req-2", again.RequestUUIDs[0])
}

func TestMemoryStore_CloseTwice(t *testing.T) {
	store := NewMemoryStore()
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}
