// Package halcache provides a caching client for HAL+JSON REST backends.
// It deduplicates concurrent identical GET requests, normalizes HAL
// responses into an object cache keyed by self link, and exposes the
// lifecycle of every request as a stream of RemoteData values with
// stale-while-revalidate semantics.
package halcache

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Client wires the registry, object cache, parsers and builder together
type Client struct {
	config *Config

	Registry *Registry
	Cache    *ObjectCache
	Builder  *Builder
	Types    *TypeRegistry

	parser *DSOParser
}

// NewClient creates a client sending requests through transport and keeping
// normalized objects in store
func NewClient(transport Transport, store Store, opts ...Option) *Client {
	config := newConfig(opts)

	cache := newObjectCache(store, config)
	parser := NewDSOParser(cache, config.Types, config.Logger)
	registry := newRegistry(transport, parser, config)

	return &Client{
		config:   config,
		Registry: registry,
		Cache:    cache,
		Builder:  NewBuilder(registry, cache, config.Types, config.Logger),
		Types:    config.Types,
		parser:   parser,
	}
}

// Config returns the client configuration
func (c *Client) Config() *Config {
	return c.config
}

// Send hands req to the registry
func (c *Client) Send(ctx context.Context, req *Request, useCachedVersionIfAvailable bool) (bool, error) {
	return c.Registry.Send(ctx, req, useCachedVersionIfAvailable)
}

// Wait blocks until all dispatched requests have completed
func (c *Client) Wait() {
	c.Registry.Wait()
}

// Endpoint discovers the href of linkPath from the root resource. Template
// parameters are stripped from the returned href.
func (c *Client) Endpoint(ctx context.Context, linkPath string) (string, error) {
	endpoints, err := c.EndpointMap(ctx)
	if err != nil {
		return "", err
	}

	href, ok := endpoints[linkPath]
	if !ok || href == "" {
		return "", fmt.Errorf("%w: %s", ErrUnknownEndpoint, linkPath)
	}
	if i := strings.Index(href, "{"); i >= 0 {
		href = href[:i]
	}
	return href, nil
}

// EndpointMap fetches (or reuses) the link map of the root resource
func (c *Client) EndpointMap(ctx context.Context) (EndpointMap, error) {
	root := c.config.RootURL
	if root == "" {
		return nil, fmt.Errorf("%w: no root url configured", ErrUnknownEndpoint)
	}

	req, err := NewRequest(MethodGet, root, WithParser(EndpointMapParser{}))
	if err != nil {
		return nil, err
	}
	if _, err := c.Send(ctx, req, true); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rd, err := FirstCompleted(ctx, BuildSingle[EndpointMap](ctx, c.Builder, root))
	if err != nil {
		return nil, err
	}
	if rd.HasFailed() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEndpoint, rd.ErrorMessage)
	}
	return rd.Payload, nil
}

// AddDependency ties the freshness of the object at href to the object at dependsOnHref
func (c *Client) AddDependency(ctx context.Context, href, dependsOnHref string) error {
	return c.Cache.AddDependency(ctx, href, dependsOnHref)
}

// InvalidateByHref marks every request that produced the object at href, and
// every request depending on it, stale. It returns once all of them are
// stale. Only the requests known at call time are affected.
func (c *Client) InvalidateByHref(ctx context.Context, href string) (bool, error) {
	entry, err := c.Cache.GetByHref(ctx, href)
	if errors.Is(err, ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	ids := make([]string, 0, len(entry.RequestUUIDs)+len(entry.DependentRequestUUIDs))
	ids = append(ids, entry.RequestUUIDs...)
	ids = append(ids, entry.DependentRequestUUIDs...)

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			_, err := c.Registry.SetStaleByUUID(gctx, id)
			if errors.Is(err, ErrRequestNotFound) {
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	if err := c.Cache.RemoveDependents(ctx, href); err != nil && !errors.Is(err, ErrNotFound) {
		return false, err
	}
	return true, nil
}
