package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AnandSundar/go-halcache"
	"github.com/cockroachdb/pebble"
)

// PebbleStore persists entries in an embedded pebble database. Pebble has no
// expiry, so each value carries its deadline and is checked on read.
type PebbleStore struct {
	db *pebble.DB
}

// NewPebbleStore opens (or creates) the database at dbPath
func NewPebbleStore(dbPath string) (*PebbleStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble database: %w", err)
	}

	return &PebbleStore{db: db}, nil
}

// Get retrieves an entry
func (s *PebbleStore) Get(_ context.Context, key string) (*halcache.CacheEntry, error) {
	value, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, halcache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	defer closer.Close()

	return decode(value)
}

// Set stores an entry. A ttl of zero or less keeps it until deleted.
func (s *PebbleStore) Set(_ context.Context, key string, value *halcache.CacheEntry, ttl time.Duration) error {
	data, err := encode(value, ttl)
	if err != nil {
		return err
	}
	return s.db.Set([]byte(key), data, pebble.Sync)
}

// Delete removes an entry
func (s *PebbleStore) Delete(_ context.Context, key string) error {
	return s.db.Delete([]byte(key), pebble.Sync)
}

// Close closes the database
func (s *PebbleStore) Close() error {
	return s.db.Close()
}
