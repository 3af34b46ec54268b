package store

import (
	"context"
	"errors"
	"time"

	"github.com/AnandSundar/go-halcache"
	"github.com/coocood/freecache"
)

// DefaultFreecacheSize is the arena size used when none is given
const DefaultFreecacheSize = 64 * 1024 * 1024

// FreecacheStore keeps entries in a fixed-size freecache arena. Entries may
// be evicted before their ttl when the arena is full.
type FreecacheStore struct {
	client *freecache.Cache
}

// NewFreecacheStore creates a store with an arena of size bytes
func NewFreecacheStore(size int) *FreecacheStore {
	if size <= 0 {
		size = DefaultFreecacheSize
	}
	return &FreecacheStore{
		client: freecache.NewCache(size),
	}
}

// Get retrieves an entry
func (s *FreecacheStore) Get(_ context.Context, key string) (*halcache.CacheEntry, error) {
	val, err := s.client.Get([]byte(key))
	if errors.Is(err, freecache.ErrNotFound) {
		return nil, halcache.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decode(val)
}

// Set stores an entry. Freecache counts expiry in whole seconds, so ttl is rounded up.
func (s *FreecacheStore) Set(_ context.Context, key string, value *halcache.CacheEntry, ttl time.Duration) error {
	val, err := encode(value, 0)
	if err != nil {
		return err
	}
	return s.client.Set([]byte(key), val, expireSeconds(ttl))
}

// Delete removes an entry
func (s *FreecacheStore) Delete(_ context.Context, key string) error {
	s.client.Del([]byte(key))
	return nil
}

// Len returns the number of entries in the arena
func (s *FreecacheStore) Len() int64 {
	return s.client.EntryCount()
}

func expireSeconds(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	seconds := int(ttl / time.Second)
	if ttl%time.Second != 0 {
		seconds++
	}
	return seconds
}
