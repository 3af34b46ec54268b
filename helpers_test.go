package halcache_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/AnandSundar/go-halcache"
	"github.com/AnandSundar/go-halcache/store"
	"github.com/stretchr/testify/require"
)

const api = "https://rest.api/server/api"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testItem is a minimal typed resource
type testItem struct {
	halcache.HALResource
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

func (i *testItem) GetUUID() string { return i.UUID }

func newTypes() *halcache.TypeRegistry {
	types := halcache.NewTypeRegistry()
	types.Register("item", func() halcache.CacheableObject { return &testItem{} })
	return types
}

func newItem(id, name string) *testItem {
	return &testItem{
		HALResource: halcache.HALResource{
			Type:  "item",
			Links: halcache.Links{"self": {{Href: api + "/core/items/" + id}}},
		},
		UUID: id,
		Name: name,
	}
}

func ok(body string) *halcache.RawResponse {
	return &halcache.RawResponse{
		StatusCode: http.StatusOK,
		StatusText: "OK",
		Headers:    http.Header{"Content-Type": []string{"application/hal+json"}},
		Payload:    []byte(body),
	}
}

func status(code int, body string) *halcache.RawResponse {
	return &halcache.RawResponse{
		StatusCode: code,
		StatusText: http.StatusText(code),
		Payload:    []byte(body),
	}
}

func newRequest(t *testing.T, method halcache.Method, href string, opts ...halcache.RequestOption) *halcache.Request {
	t.Helper()
	req, err := halcache.NewRequest(method, href, opts...)
	require.NoError(t, err)
	return req
}

func newMemoryStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	return s
}

// clock is a settable time source
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// next reads one value from ch or fails after a timeout
func next[T any](t *testing.T, ch <-chan halcache.RemoteData[T]) halcache.RemoteData[T] {
	t.Helper()
	select {
	case rd, ok := <-ch:
		require.True(t, ok, "stream closed")
		return rd
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for remote data")
		return halcache.RemoteData[T]{}
	}
}

// until reads ch until match accepts a value
func until[T any](t *testing.T, ch <-chan halcache.RemoteData[T], match func(halcache.RemoteData[T]) bool) halcache.RemoteData[T] {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case rd, ok := <-ch:
			require.True(t, ok, "stream closed")
			if match(rd) {
				return rd
			}
		case <-deadline:
			t.Fatal("timed out waiting for remote data")
		}
	}
}

func withTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
