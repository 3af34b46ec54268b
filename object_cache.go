package halcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	objectKeyPrefix = "object:"

	// maxRequestHistory caps how many producing requests an entry remembers
	maxRequestHistory = 16
)

// ObjectCache stores normalized objects keyed by self link. Writes are
// serialized; each write replaces the whole entry.
type ObjectCache struct {
	store  Store
	config *Config
	logger *slog.Logger

	mu        sync.RWMutex
	uuidIndex map[string]string
	altIndex  map[string]string

	watchers *watchers[*CacheEntry]
}

// NewObjectCache creates an object cache on top of store
func NewObjectCache(store Store, opts ...Option) *ObjectCache {
	return newObjectCache(store, newConfig(opts))
}

func newObjectCache(store Store, config *Config) *ObjectCache {
	return &ObjectCache{
		store:     store,
		config:    config,
		logger:    config.Logger,
		uuidIndex: make(map[string]string),
		altIndex:  make(map[string]string),
		watchers:  newWatchers[*CacheEntry](),
	}
}

func objectKey(href string) string {
	return objectKeyPrefix + href
}

// Add stores obj under its self link, fresh for ttl, recording requestUUID as
// the request that produced it. Objects without a self link are skipped.
func (c *ObjectCache) Add(ctx context.Context, obj CacheableObject, ttl time.Duration, requestUUID string, alternativeLink string) error {
	if obj == nil {
		return nil
	}
	self := obj.Self()
	if self == "" {
		c.logger.Warn("skipping object without self link", "type", obj.ResourceType(), "request", requestUUID)
		return nil
	}

	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", self, err)
	}

	entry := &CacheEntry{
		Href:          self,
		Type:          obj.ResourceType(),
		Data:          data,
		TimeCompleted: c.config.Now(),
		TTL:           ttl,
	}
	if identifiable, ok := obj.(Identifiable); ok {
		entry.UUID = identifiable.GetUUID()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev, err := c.getLocked(ctx, self)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	if requestUUID != "" {
		entry.RequestUUIDs = []string{requestUUID}
	}
	if prev != nil {
		for _, id := range prev.RequestUUIDs {
			if id != requestUUID && len(entry.RequestUUIDs) < maxRequestHistory {
				entry.RequestUUIDs = append(entry.RequestUUIDs, id)
			}
		}
		entry.DependentRequestUUIDs = prev.DependentRequestUUIDs
		entry.AlternativeLinks = prev.AlternativeLinks
	}
	if alternativeLink != "" && alternativeLink != self && !contains(entry.AlternativeLinks, alternativeLink) {
		entry.AlternativeLinks = append(entry.AlternativeLinks, alternativeLink)
	}

	return c.putLocked(ctx, entry)
}

func (c *ObjectCache) putLocked(ctx context.Context, entry *CacheEntry) error {
	if err := c.store.Set(ctx, objectKey(entry.Href), entry, c.retentionFor(entry)); err != nil {
		return fmt.Errorf("failed to store %s: %w", entry.Href, err)
	}

	if entry.UUID != "" {
		c.uuidIndex[entry.UUID] = entry.Href
	}
	for _, alt := range entry.AlternativeLinks {
		c.altIndex[alt] = entry.Href
	}

	c.watchers.publish(entry.Href, entry.clone())
	return nil
}

func (c *ObjectCache) retentionFor(entry *CacheEntry) time.Duration {
	if entry.TTL <= 0 {
		return 0
	}
	return entry.TTL + c.config.Retention
}

func (c *ObjectCache) resolve(href string) string {
	if self, ok := c.altIndex[href]; ok {
		return self
	}
	return href
}

func (c *ObjectCache) getLocked(ctx context.Context, href string) (*CacheEntry, error) {
	entry, err := c.store.Get(ctx, objectKey(c.resolve(href)))
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// GetByHref returns the entry stored under href or one of its alternative
// links, expired or not. Use HasByHref to check freshness.
func (c *ObjectCache) GetByHref(ctx context.Context, href string) (*CacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.getLocked(ctx, href)
}

// GetByUUID returns the entry of the object with the given uuid
func (c *ObjectCache) GetByUUID(ctx context.Context, id string) (*CacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	href, ok := c.uuidIndex[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.getLocked(ctx, href)
}

// HasByHref reports whether a fresh entry exists for href
func (c *ObjectCache) HasByHref(ctx context.Context, href string) bool {
	entry, err := c.GetByHref(ctx, href)
	return err == nil && !entry.IsExpired(c.config.Now())
}

// HasByUUID reports whether a fresh entry exists for the object uuid
func (c *ObjectCache) HasByUUID(ctx context.Context, id string) bool {
	entry, err := c.GetByUUID(ctx, id)
	return err == nil && !entry.IsExpired(c.config.Now())
}

// GetRequestUUIDBySelfLink returns the uuid of the request that last wrote href
func (c *ObjectCache) GetRequestUUIDBySelfLink(ctx context.Context, href string) (string, error) {
	entry, err := c.GetByHref(ctx, href)
	if err != nil {
		return "", err
	}
	return entry.LatestRequestUUID(), nil
}

// Remove evicts the entry stored under href
func (c *ObjectCache) Remove(ctx context.Context, href string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	self := c.resolve(href)
	entry, err := c.getLocked(ctx, self)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	if err := c.store.Delete(ctx, objectKey(self)); err != nil {
		return fmt.Errorf("failed to remove %s: %w", self, err)
	}

	if entry != nil {
		if entry.UUID != "" && c.uuidIndex[entry.UUID] == self {
			delete(c.uuidIndex, entry.UUID)
		}
		for _, alt := range entry.AlternativeLinks {
			delete(c.altIndex, alt)
		}
	}

	c.watchers.publish(self, nil)
	return nil
}

// AddDependency records that the object at href must be invalidated together
// with the object at dependsOnHref.
func (c *ObjectCache) AddDependency(ctx context.Context, href, dependsOnHref string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dependent, err := c.getLocked(ctx, href)
	if err != nil {
		return fmt.Errorf("dependent %s: %w", href, err)
	}
	requestUUID := dependent.LatestRequestUUID()
	if requestUUID == "" {
		return nil
	}

	target, err := c.getLocked(ctx, dependsOnHref)
	if err != nil {
		return fmt.Errorf("dependency %s: %w", dependsOnHref, err)
	}
	if contains(target.DependentRequestUUIDs, requestUUID) {
		return nil
	}

	next := target.clone()
	next.DependentRequestUUIDs = append(next.DependentRequestUUIDs, requestUUID)
	return c.putLocked(ctx, next)
}

// RemoveDependents clears the dependent requests of href
func (c *ObjectCache) RemoveDependents(ctx context.Context, href string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, err := c.getLocked(ctx, href)
	if err != nil {
		return err
	}
	if len(entry.DependentRequestUUIDs) == 0 {
		return nil
	}

	next := entry.clone()
	next.DependentRequestUUIDs = nil
	return c.putLocked(ctx, next)
}

// WatchByHref emits the entry for href now and whenever it is replaced or
// removed. A nil value means there is no entry.
func (c *ObjectCache) WatchByHref(ctx context.Context, href string) <-chan *CacheEntry {
	c.mu.RLock()
	self := c.resolve(href)
	c.mu.RUnlock()

	return c.watchers.watch(ctx, self, func() *CacheEntry {
		entry, err := c.GetByHref(ctx, self)
		if err != nil {
			return nil
		}
		return entry
	})
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
