package halcache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Registry tracks every request by uuid and GET requests by href. All state
// changes go through dispatch, which applies reduceEntry under a single lock.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*RequestEntry
	hrefs   map[string]string

	watchers  *watchers[*RequestEntry]
	transport Transport
	parser    ResponseParser
	config    *Config
	logger    *slog.Logger

	inFlight sync.WaitGroup

	// lastPrune is when expired entries were last dropped
	lastPrune time.Time
}

// pruneInterval bounds how often Send scans for entries past retention
const pruneInterval = time.Minute

// NewRegistry creates a registry that sends requests through transport.
// Requests without a parser of their own are parsed by defaultParser.
func NewRegistry(transport Transport, defaultParser ResponseParser, opts ...Option) *Registry {
	config := newConfig(opts)
	return newRegistry(transport, defaultParser, config)
}

func newRegistry(transport Transport, defaultParser ResponseParser, config *Config) *Registry {
	return &Registry{
		entries:   make(map[string]*RequestEntry),
		hrefs:     make(map[string]string),
		watchers:  newWatchers[*RequestEntry](),
		transport: transport,
		parser:    defaultParser,
		config:    config,
		logger:    config.Logger,
	}
}

func uuidKey(id string) string   { return "uuid:" + id }
func hrefKey(href string) string { return "href:" + href }

// Send dispatches req unless it is a GET that can be answered by a pending or
// fresh entry for the same href. It reports whether a call was dispatched.
func (r *Registry) Send(ctx context.Context, req *Request, useCachedVersionIfAvailable bool) (bool, error) {
	if req == nil {
		return false, fmt.Errorf("%w: nil request", ErrInvalidRequest)
	}

	now := r.config.Now()

	r.mu.Lock()
	if req.Method.IsIdempotentRead() && useCachedVersionIfAvailable {
		if existing := r.entries[r.hrefs[req.Href]]; existing.isValid(now) {
			r.mu.Unlock()
			r.logger.Debug("request served from registry", "href", req.Href, "uuid", existing.Request.UUID, "state", existing.State)
			return false, nil
		}
	}
	r.pruneLocked(now)
	r.applyLocked(action{kind: actionConfigure, uuid: req.UUID, request: req, timestamp: now})
	r.mu.Unlock()

	r.inFlight.Add(1)
	go r.execute(context.WithoutCancel(ctx), req)

	return true, nil
}

// Wait blocks until every dispatched call has recorded its response
func (r *Registry) Wait() {
	r.inFlight.Wait()
}

func (r *Registry) execute(ctx context.Context, req *Request) {
	defer r.inFlight.Done()

	r.dispatch(action{kind: actionExecute, uuid: req.UUID, timestamp: r.config.Now()})
	r.logger.Debug("dispatching request", "method", req.Method, "href", req.Href, "uuid", req.UUID)

	raw, err := r.transport.Do(ctx, req)
	ttl := r.ttlFor(req, raw)

	var response *ParsedResponse
	switch {
	case err != nil:
		r.logger.Error("request failed", "href", req.Href, "uuid", req.UUID, "error", err)
		response = &ParsedResponse{
			StatusCode:   0,
			ErrorMessage: err.Error(),
		}
	case raw == nil:
		response = &ParsedResponse{ErrorMessage: "empty response from transport"}
	case !raw.IsSuccessful():
		response = errorResponse(raw)
	default:
		response = r.parse(ctx, req, raw, ttl)
	}
	response.TimeCompleted = r.config.Now()

	r.dispatch(action{
		kind:      actionComplete,
		uuid:      req.UUID,
		response:  response,
		ttl:       ttl,
		timestamp: response.TimeCompleted,
	})
}

// payloadIgnorer is implemented by parsers that never look at the body
type payloadIgnorer interface {
	IgnoresPayload() bool
}

func (r *Registry) parse(ctx context.Context, req *Request, raw *RawResponse, ttl time.Duration) (response *ParsedResponse) {
	parser := req.Parser
	if parser == nil {
		parser = r.parser
	}

	ignorer, ok := parser.(payloadIgnorer)
	ignoresPayload := ok && ignorer.IgnoresPayload()
	if !ignoresPayload && !isWellFormed(raw.Payload) {
		r.logger.Warn("malformed response payload", "href", req.Href, "uuid", req.UUID, "status", raw.StatusCode)
		return &ParsedResponse{
			StatusCode:   raw.StatusCode,
			StatusText:   raw.StatusText,
			ErrorMessage: "malformed response payload",
		}
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("response parser panicked", "href", req.Href, "uuid", req.UUID, "panic", p)
			response = &ParsedResponse{
				StatusCode:   raw.StatusCode,
				StatusText:   raw.StatusText,
				ErrorMessage: fmt.Sprintf("%v", p),
			}
		}
	}()

	resolved := *req
	resolved.ResponseTTL = ttl
	return parser.Parse(ctx, &resolved, raw)
}

func (r *Registry) ttlFor(req *Request, raw *RawResponse) time.Duration {
	if req.ResponseTTL > 0 {
		return req.ResponseTTL
	}
	if raw != nil && !raw.Expires.IsZero() {
		if ttl := raw.Expires.Sub(r.config.Now()); ttl > 0 {
			return ttl
		}
	}
	return r.config.TTL
}

func isWellFormed(payload []byte) bool {
	trimmed := bytes.TrimSpace(payload)
	return len(trimmed) == 0 || json.Valid(trimmed)
}

// errorResponse builds the response recorded for a non-2xx status
func errorResponse(raw *RawResponse) *ParsedResponse {
	message := raw.StatusText
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if len(raw.Payload) > 0 && json.Unmarshal(raw.Payload, &body) == nil {
		switch {
		case body.Message != "":
			message = body.Message
		case body.Error != "":
			message = body.Error
		}
	}
	if message == "" {
		message = http.StatusText(raw.StatusCode)
	}

	return &ParsedResponse{
		StatusCode:   raw.StatusCode,
		StatusText:   raw.StatusText,
		ErrorMessage: message,
	}
}

func (r *Registry) dispatch(a action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applyLocked(a)
}

// applyLocked runs the reducer and publishes the new snapshot. r.mu must be held.
func (r *Registry) applyLocked(a action) {
	prev := r.entries[a.uuid]
	next := reduceEntry(prev, a)
	if next == prev {
		return
	}

	var href string
	switch {
	case next != nil:
		r.entries[a.uuid] = next
		href = next.Request.Href
		if a.kind == actionConfigure && next.Request.Method.IsIdempotentRead() {
			r.hrefs[href] = a.uuid
		}
	case prev != nil:
		delete(r.entries, a.uuid)
		href = prev.Request.Href
		if r.hrefs[href] == a.uuid {
			delete(r.hrefs, href)
		}
	}

	r.watchers.publish(uuidKey(a.uuid), next)
	if href != "" && (r.hrefs[href] == a.uuid || next == nil) {
		r.watchers.publish(hrefKey(href), r.entries[r.hrefs[href]])
	}
}

// pruneLocked drops completed entries whose TTL and retention have both
// passed. Pending entries and entries without a TTL are kept. r.mu must be held.
func (r *Registry) pruneLocked(now time.Time) {
	if now.Sub(r.lastPrune) < pruneInterval {
		return
	}
	r.lastPrune = now

	var expired []string
	for id, entry := range r.entries {
		if entry.Response == nil || entry.TTL <= 0 {
			continue
		}
		if now.After(entry.Response.TimeCompleted.Add(entry.TTL + r.config.Retention)) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		r.applyLocked(action{kind: actionRemove, uuid: id, timestamp: now})
	}
	if len(expired) > 0 {
		r.logger.Debug("pruned expired request entries", "count", len(expired))
	}
}

// IsPending reports whether req was dispatched without a recorded response
func (r *Registry) IsPending(req *Request) bool {
	entry, ok := r.GetByUUID(req.UUID)
	return ok && entry.State.IsPending()
}

// GetByUUID returns the current entry for a request uuid
func (r *Registry) GetByUUID(id string) (*RequestEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[id]
	return entry, ok
}

// GetByHref returns the entry of the latest GET sent for href
func (r *Registry) GetByHref(href string) (*RequestEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[r.hrefs[href]]
	return entry, ok
}

// WatchByUUID emits the entry for id now and on every change, until ctx is done.
// A nil value means there is no entry.
func (r *Registry) WatchByUUID(ctx context.Context, id string) <-chan *RequestEntry {
	return r.watchers.watch(ctx, uuidKey(id), func() *RequestEntry {
		entry, _ := r.GetByUUID(id)
		return entry
	})
}

// WatchByHref emits the entry of the latest GET for href now and on every change
func (r *Registry) WatchByHref(ctx context.Context, href string) <-chan *RequestEntry {
	return r.watchers.watch(ctx, hrefKey(href), func() *RequestEntry {
		entry, _ := r.GetByHref(href)
		return entry
	})
}

// SetStaleByUUID marks the entry stale and returns once the stale state is
// observed. For a pending entry that is when its response is recorded.
func (r *Registry) SetStaleByUUID(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	entry, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrRequestNotFound, id)
	}
	if entry.State.IsStale() {
		r.mu.Unlock()
		return true, nil
	}

	sub := r.watchers.subscribe(uuidKey(id))
	defer r.watchers.unsubscribe(uuidKey(id), sub)

	r.applyLocked(action{kind: actionStale, uuid: id, timestamp: r.config.Now()})
	current := r.entries[id]
	r.mu.Unlock()

	for {
		if current == nil {
			return false, fmt.Errorf("%w: %s", ErrRequestNotFound, id)
		}
		if current.State.IsStale() {
			return true, nil
		}

		select {
		case current = <-sub.ch:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// SetStaleByHrefSubstring marks every entry whose href contains substr stale
// and returns once all of them are.
func (r *Registry) SetStaleByHrefSubstring(ctx context.Context, substr string) (bool, error) {
	return r.SetStaleWhere(ctx, func(href string) bool {
		return strings.Contains(href, substr)
	})
}

// SetStaleWhere marks every entry whose href satisfies match stale and
// returns once all of them are.
func (r *Registry) SetStaleWhere(ctx context.Context, match func(href string) bool) (bool, error) {
	ids := r.uuidsWhere(match)

	g, ctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			_, err := r.SetStaleByUUID(ctx, id)
			if errors.Is(err, ErrRequestNotFound) {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveByHrefSubstring drops every entry whose href contains substr
func (r *Registry) RemoveByHrefSubstring(substr string) int {
	ids := r.uuidsWhere(func(href string) bool {
		return strings.Contains(href, substr)
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		r.applyLocked(action{kind: actionRemove, uuid: id, timestamp: r.config.Now()})
	}
	return len(ids)
}

func (r *Registry) uuidsWhere(match func(href string) bool) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, entry := range r.entries {
		if match(entry.Request.Href) {
			ids = append(ids, id)
		}
	}
	return ids
}
