package store

import (
	"context"
	"sync"
	"time"

	"github.com/AnandSundar/go-halcache"
)

// MemoryStore is an in-memory implementation of halcache.Store
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]*entry

	stop chan struct{}
	once sync.Once
}

type entry struct {
	value     *halcache.CacheEntry
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		data: make(map[string]*entry),
		stop: make(chan struct{}),
	}

	// Start cleanup goroutine
	go s.cleanup(time.Minute)

	return s
}

// Get retrieves an entry
func (s *MemoryStore) Get(_ context.Context, key string) (*halcache.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.data[key]
	if !exists || e.expired(time.Now()) {
		return nil, halcache.ErrNotFound
	}

	return copyEntry(e.value), nil
}

// Set stores an entry. A ttl of zero or less keeps it until it is deleted.
func (s *MemoryStore) Set(_ context.Context, key string, value *halcache.CacheEntry, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &entry{value: copyEntry(value)}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	s.data[key] = e

	return nil
}

// Delete removes an entry
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// Len returns the number of entries held, expired ones included
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Close stops the cleanup goroutine
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

// cleanup periodically removes expired entries
func (s *MemoryStore) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictExpired(time.Now())
		case <-s.stop:
			return
		}
	}
}

func (s *MemoryStore) evictExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, e := range s.data {
		if e.expired(now) {
			delete(s.data, key)
		}
	}
}

// copyEntry keeps callers from mutating what the store holds
func copyEntry(e *halcache.CacheEntry) *halcache.CacheEntry {
	if e == nil {
		return nil
	}
	c := *e
	c.Data = append([]byte(nil), e.Data...)
	c.AlternativeLinks = append([]string(nil), e.AlternativeLinks...)
	c.RequestUUIDs = append([]string(nil), e.RequestUUIDs...)
	c.DependentRequestUUIDs = append([]string(nil), e.DependentRequestUUIDs...)
	return &c
}
