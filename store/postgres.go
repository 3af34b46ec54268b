package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AnandSundar/go-halcache"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS halcache_entries (
	key        TEXT PRIMARY KEY,
	value      JSONB NOT NULL,
	expires_at TIMESTAMPTZ
)`

// PostgresStore shares a cache between processes through a Postgres table
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates the cache table if needed
func NewPostgresStore(ctx context.Context, db *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := db.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Get retrieves an entry
func (s *PostgresStore) Get(ctx context.Context, key string) (*halcache.CacheEntry, error) {
	var value []byte
	err := s.db.QueryRow(ctx,
		`SELECT value FROM halcache_entries WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, halcache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return decode(value)
}

// Set stores an entry. A ttl of zero or less keeps it until deleted.
func (s *PostgresStore) Set(ctx context.Context, key string, value *halcache.CacheEntry, ttl time.Duration) error {
	data, err := encode(value, 0)
	if err != nil {
		return err
	}

	var expires *time.Time
	if at := expiresAt(ttl); !at.IsZero() {
		expires = &at
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO halcache_entries (key, value, expires_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, data, expires,
	)
	if err != nil {
		return fmt.Errorf("failed to set entry: %w", err)
	}
	return nil
}

// Delete removes an entry
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM halcache_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	return nil
}
