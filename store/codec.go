package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/AnandSundar/go-halcache"
)

// envelope is how byte-oriented backends persist an entry. Backends without
// native expiry check ExpiresAt on read.
type envelope struct {
	Entry     *halcache.CacheEntry `json:"entry"`
	ExpiresAt time.Time            `json:"expires_at,omitempty"`
}

func (e *envelope) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

func expiresAt(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

func encode(value *halcache.CacheEntry, ttl time.Duration) ([]byte, error) {
	data, err := json.Marshal(envelope{Entry: value, ExpiresAt: expiresAt(ttl)})
	if err != nil {
		return nil, fmt.Errorf("failed to encode entry: %w", err)
	}
	return data, nil
}

// decode returns halcache.ErrNotFound for an envelope past its expiry
func decode(data []byte) (*halcache.CacheEntry, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode entry: %w", err)
	}
	if env.Entry == nil || env.expired(time.Now()) {
		return nil, halcache.ErrNotFound
	}
	return env.Entry, nil
}
