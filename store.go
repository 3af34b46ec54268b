package halcache

import (
	"context"
	"encoding/json"
	"time"
)

// Store defines the interface for persisting normalized cache entries
type Store interface {
	// Get retrieves an entry by key, or ErrNotFound
	Get(ctx context.Context, key string) (*CacheEntry, error)

	// Set stores an entry with the given key, replacing any previous value.
	// The store may drop the entry once ttl has passed.
	Set(ctx context.Context, key string, entry *CacheEntry, ttl time.Duration) error

	// Delete removes an entry. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// CacheEntry is a normalized object as it is kept in the object cache
type CacheEntry struct {
	Href                  string          `json:"href"`
	Type                  string          `json:"type"`
	UUID                  string          `json:"uuid,omitempty"`
	Data                  json.RawMessage `json:"data"`
	AlternativeLinks      []string        `json:"alternative_links,omitempty"`
	RequestUUIDs          []string        `json:"request_uuids,omitempty"`
	DependentRequestUUIDs []string        `json:"dependent_request_uuids,omitempty"`
	TimeCompleted         time.Time       `json:"time_completed"`
	TTL                   time.Duration   `json:"ttl"`
}

// IsExpired reports whether the entry is past its time-to-live at now
func (e *CacheEntry) IsExpired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return now.After(e.TimeCompleted.Add(e.TTL))
}

// LatestRequestUUID returns the uuid of the request that last wrote the entry
func (e *CacheEntry) LatestRequestUUID() string {
	if len(e.RequestUUIDs) == 0 {
		return ""
	}
	return e.RequestUUIDs[0]
}

func (e *CacheEntry) clone() *CacheEntry {
	c := *e
	c.AlternativeLinks = append([]string(nil), e.AlternativeLinks...)
	c.RequestUUIDs = append([]string(nil), e.RequestUUIDs...)
	c.DependentRequestUUIDs = append([]string(nil), e.DependentRequestUUIDs...)
	return &c
}
