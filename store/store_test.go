package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AnandSundar/go-halcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntry(href string) *halcache.CacheEntry {
	return &halcache.CacheEntry{
		Href:             href,
		Type:             "item",
		UUID:             "7a1f9a0e-5f43-4c7e-9d6a-0b4f3c2f1e11",
		Data:             json.RawMessage(`{"type":"item","_links":{"self":{"href":"` + href + `"}}}`),
		AlternativeLinks: []string{href + "?projection=full"},
		RequestUUIDs:     []string{"req-2", "req-1"},
		TimeCompleted:    time.Now().Truncate(time.Millisecond),
		TTL:              15 * time.Minute,
	}
}

// storeContract runs the behavior every halcache.Store must share
func storeContract(t *testing.T, s halcache.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		entry := testEntry("https://rest.api/core/items/1")

		err := s.Set(ctx, "object:"+entry.Href, entry, time.Hour)
		require.NoError(t, err)

		cached, err := s.Get(ctx, "object:"+entry.Href)
		require.NoError(t, err)
		assert.Equal(t, entry.Href, cached.Href)
		assert.Equal(t, entry.UUID, cached.UUID)
		assert.JSONEq(t, string(entry.Data), string(cached.Data))
		assert.Equal(t, entry.RequestUUIDs, cached.RequestUUIDs)
		assert.Equal(t, entry.AlternativeLinks, cached.AlternativeLinks)
		assert.Equal(t, entry.TTL, cached.TTL)
		assert.True(t, entry.TimeCompleted.Equal(cached.TimeCompleted))
	})

	t.Run("GetNotFound", func(t *testing.T) {
		_, err := s.Get(ctx, "nonexistent")
		assert.ErrorIs(t, err, halcache.ErrNotFound)
	})

	t.Run("Replace", func(t *testing.T) {
		first := testEntry("https://rest.api/core/items/2")
		second := testEntry("https://rest.api/core/items/2")
		second.RequestUUIDs = []string{"req-3"}

		require.NoError(t, s.Set(ctx, "replace", first, time.Hour))
		require.NoError(t, s.Set(ctx, "replace", second, time.Hour))

		cached, err := s.Get(ctx, "replace")
		require.NoError(t, err)
		assert.Equal(t, []string{"req-3"}, cached.RequestUUIDs)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "delete-me", testEntry("https://rest.api/core/items/3"), time.Hour))
		require.NoError(t, s.Delete(ctx, "delete-me"))

		_, err := s.Get(ctx, "delete-me")
		assert.ErrorIs(t, err, halcache.ErrNotFound)

		// deleting twice is fine
		assert.NoError(t, s.Delete(ctx, "delete-me"))
	})

	t.Run("NoExpiry", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "forever", testEntry("https://rest.api/core/items/4"), 0))

		cached, err := s.Get(ctx, "forever")
		require.NoError(t, err)
		assert.Equal(t, "https://rest.api/core/items/4", cached.Href)
	})
}

func tempPath(t *testing.T, name string) string {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "halcache_store_test")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := os.RemoveAll(tempDir); err != nil {
			t.Logf("Failed to remove temp dir: %v", err)
		}
	})
	return filepath.Join(tempDir, name)
}
