package store

import (
	"context"
	"testing"
	"time"

	"github.com/AnandSundar/go-halcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestPebble(t *testing.T) *PebbleStore {
	t.Helper()

	store, err := NewPebbleStore(tempPath(t, "pebble"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Logf("Failed to close store: %v", err)
		}
	})
	return store
}

func TestPebbleStore_Contract(t *testing.T) {
	storeContract(t, setupTestPebble(t))
}

func TestPebbleStore_Expiration(t *testing.T) {
	store := setupTestPebble(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "short", testEntry("https://rest.api/core/items/1"), 50*time.Millisecond))

	time.Sleep(100 * time.Millisecond)

	_, err := store.Get(ctx, "short")
	assert.ErrorIs(t, err, halcache.ErrNotFound)
}
