package halcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Builder composes registry state and cached objects into RemoteData
// streams. It never dispatches requests itself.
type Builder struct {
	registry *Registry
	cache    *ObjectCache
	types    *TypeRegistry
	logger   *slog.Logger
}

// NewBuilder returns a builder reading from registry and cache
func NewBuilder(registry *Registry, cache *ObjectCache, types *TypeRegistry, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		registry: registry,
		cache:    cache,
		types:    types,
		logger:   logger,
	}
}

// source is what a stream is keyed on: an href or a request uuid
type source struct {
	href        string
	requestUUID string
}

// snapshot is the input a RemoteData is computed from
type snapshot struct {
	entry       *RequestEntry
	payloadLink string
}

func (s snapshot) fingerprint() string {
	if s.entry == nil {
		return ""
	}
	return fmt.Sprintf("%s|%s|%d|%s", s.entry.Request.UUID, s.entry.State, s.entry.LastUpdated.UnixNano(), s.payloadLink)
}

// pickEntry chooses between the entry of the href and the entry of the
// request that last wrote the cached object: a fresh one over a stale one,
// otherwise the most recently updated.
func pickEntry(byHref, byUUID *RequestEntry) *RequestEntry {
	switch {
	case byHref == nil:
		return byUUID
	case byUUID == nil:
		return byHref
	case byHref.State.IsStale() && !byUUID.State.IsStale():
		return byUUID
	case byUUID.State.IsStale() && !byHref.State.IsStale():
		return byHref
	case byUUID.LastUpdated.After(byHref.LastUpdated):
		return byUUID
	default:
		return byHref
	}
}

func (b *Builder) resolve(ctx context.Context, src source) (snapshot, []string) {
	var entry *RequestEntry
	var deps []string
	var self string

	if src.requestUUID != "" {
		entry, _ = b.registry.GetByUUID(src.requestUUID)
		deps = append(deps, uuidKey(src.requestUUID))
	} else {
		byHref, _ := b.registry.GetByHref(src.href)
		deps = append(deps, hrefKey(src.href), objectKey(src.href))

		var byUUID *RequestEntry
		if cached, err := b.cache.GetByHref(ctx, src.href); err == nil {
			// the object may have been written by a request for another
			// href, such as a list embedding it
			self = cached.Href
			if id := cached.LatestRequestUUID(); id != "" {
				byUUID, _ = b.registry.GetByUUID(id)
				deps = append(deps, uuidKey(id))
			}
		}
		entry = pickEntry(byHref, byUUID)
	}

	snap := snapshot{entry: entry, payloadLink: self}
	if entry != nil && entry.Response != nil && snap.payloadLink == "" {
		snap.payloadLink = entry.Response.PayloadLink
	}
	if snap.payloadLink != "" {
		deps = append(deps, objectKey(snap.payloadLink))
	}
	return snap, deps
}

// follow keeps one watch per dependency key and pokes trigger on any change
type follow struct {
	b       *Builder
	ctx     context.Context
	trigger chan struct{}
	active  map[string]context.CancelFunc
}

func newFollow(ctx context.Context, b *Builder) *follow {
	return &follow{
		b:       b,
		ctx:     ctx,
		trigger: make(chan struct{}, 1),
		active:  make(map[string]context.CancelFunc),
	}
}

func (f *follow) sync(keys []string) {
	wanted := make(map[string]bool, len(keys))
	for _, key := range keys {
		wanted[key] = true
		if _, ok := f.active[key]; ok {
			continue
		}
		ctx, cancel := context.WithCancel(f.ctx)
		f.active[key] = cancel
		f.start(ctx, key)
	}
	for key, cancel := range f.active {
		if !wanted[key] {
			cancel()
			delete(f.active, key)
		}
	}
}

func (f *follow) start(ctx context.Context, key string) {
	if id, ok := strings.CutPrefix(key, "uuid:"); ok {
		go poke(ctx, f.b.registry.WatchByUUID(ctx, id), f.trigger)
		return
	}
	if href, ok := strings.CutPrefix(key, "href:"); ok {
		go poke(ctx, f.b.registry.WatchByHref(ctx, href), f.trigger)
		return
	}
	if href, ok := strings.CutPrefix(key, objectKeyPrefix); ok {
		go poke(ctx, f.b.cache.WatchByHref(ctx, href), f.trigger)
	}
}

func (f *follow) stop() {
	for _, cancel := range f.active {
		cancel()
	}
}

func poke[T any](ctx context.Context, ch <-chan T, trigger chan<- struct{}) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
			select {
			case trigger <- struct{}{}:
			default:
			}
		case <-ctx.Done():
			return
		}
	}
}

// stream recomputes a RemoteData whenever one of its inputs changes and
// emits it when it differs from the previous emission.
func stream[T any](ctx context.Context, b *Builder, src source, payload func(ctx context.Context, s snapshot) (T, bool)) <-chan RemoteData[T] {
	out := make(chan RemoteData[T])

	go func() {
		defer close(out)

		f := newFollow(ctx, b)
		defer f.stop()

		var last string
		var lastGood T
		var hasGood bool

		for {
			snap, deps := b.resolve(ctx, src)
			f.sync(deps)

			if fp := snap.fingerprint(); fp != "" && fp != last {
				rd := remoteDataFrom[T](snap.entry)
				switch {
				case snap.entry.State.IsSuccess():
					if value, ok := payload(ctx, snap); ok {
						rd.Payload = value
						lastGood, hasGood = value, true
					} else if snap.entry.State.IsStale() && hasGood {
						rd.Payload = lastGood
					}
				case snap.entry.State.IsPending() && hasGood:
					// keep rendering the previous payload while it is re-fetched
					rd.Payload = lastGood
				}

				select {
				case out <- rd:
					last = fp
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-f.trigger:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

func remoteDataFrom[T any](entry *RequestEntry) RemoteData[T] {
	rd := RemoteData[T]{
		RequestUUID: entry.Request.UUID,
		State:       entry.State,
		LastUpdated: entry.LastUpdated,
		TTL:         entry.TTL,
	}
	if entry.Response != nil {
		rd.StatusCode = entry.Response.StatusCode
		rd.ErrorMessage = entry.Response.ErrorMessage
		rd.TimeCompleted = entry.Response.TimeCompleted
	}
	return rd
}

func singlePayload[T any](b *Builder) func(ctx context.Context, s snapshot) (T, bool) {
	return func(ctx context.Context, s snapshot) (T, bool) {
		var zero T
		response := s.entry.Response
		if response == nil {
			return zero, false
		}

		if response.Uncacheable != nil {
			value, ok := response.Uncacheable.(T)
			if !ok {
				b.logger.Warn("uncacheable payload has unexpected type", "uuid", s.entry.Request.UUID, "type", fmt.Sprintf("%T", response.Uncacheable))
			}
			return value, ok
		}
		if s.payloadLink == "" {
			return zero, false
		}

		value, err := decodeObject[T](ctx, b, s.payloadLink)
		if err != nil {
			b.logger.Warn("could not resolve payload", "self", s.payloadLink, "uuid", s.entry.Request.UUID, "error", err)
			return zero, false
		}
		return value, true
	}
}

func decodeObject[T any](ctx context.Context, b *Builder, href string) (T, error) {
	var zero T

	entry, err := b.cache.GetByHref(ctx, href)
	if err != nil {
		return zero, err
	}
	obj, err := b.types.Decode(entry.Type, entry.Data)
	if err != nil {
		return zero, err
	}
	value, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is a %T", ErrUnexpectedPayload, href, obj)
	}
	return value, nil
}

func listPayload[T any](b *Builder) func(ctx context.Context, s snapshot) (*PaginatedList[T], bool) {
	return func(ctx context.Context, s snapshot) (*PaginatedList[T], bool) {
		if s.payloadLink == "" {
			return nil, false
		}

		entry, err := b.cache.GetByHref(ctx, s.payloadLink)
		if err != nil {
			b.logger.Warn("could not resolve list", "self", s.payloadLink, "error", err)
			return nil, false
		}
		if entry.Type != PaginatedListType {
			b.logger.Warn("payload is not a list", "self", s.payloadLink, "type", entry.Type)
			return nil, false
		}

		var normalized NormalizedList
		if err := json.Unmarshal(entry.Data, &normalized); err != nil {
			b.logger.Warn("could not read list", "self", s.payloadLink, "error", err)
			return nil, false
		}

		list := &PaginatedList[T]{
			Self:     entry.Href,
			PageInfo: normalized.PageInfo,
			Page:     make([]T, 0, len(normalized.Page)),
		}
		for _, href := range normalized.Page {
			value, err := decodeObject[T](ctx, b, href)
			if err != nil {
				b.logger.Debug("skipping unresolvable list element", "list", entry.Href, "self", href, "error", err)
				continue
			}
			list.Page = append(list.Page, value)
		}
		return list, true
	}
}

// BuildSingle streams the RemoteData of the object at href. Nothing is
// emitted until a request for href is known.
func BuildSingle[T any](ctx context.Context, b *Builder, href string) <-chan RemoteData[T] {
	return stream(ctx, b, source{href: href}, singlePayload[T](b))
}

// BuildList streams the RemoteData of the paginated list at href
func BuildList[T any](ctx context.Context, b *Builder, href string) <-chan RemoteData[*PaginatedList[T]] {
	return stream(ctx, b, source{href: href}, listPayload[T](b))
}

// BuildFromRequestUUID streams the RemoteData of a single request. Use it for
// writes, which have no stable GET href.
func BuildFromRequestUUID[T any](ctx context.Context, b *Builder, requestUUID string) <-chan RemoteData[T] {
	return stream(ctx, b, source{requestUUID: requestUUID}, singlePayload[T](b))
}

// BuildListFromRequestUUID is BuildFromRequestUUID for list responses
func BuildListFromRequestUUID[T any](ctx context.Context, b *Builder, requestUUID string) <-chan RemoteData[*PaginatedList[T]] {
	return stream(ctx, b, source{requestUUID: requestUUID}, listPayload[T](b))
}

// BuildFromRequestUUIDAndAwait is BuildFromRequestUUID, except that a
// successful value is only emitted after callback returned. The callback runs
// whether or not anyone reads the stream.
func BuildFromRequestUUIDAndAwait[T any](ctx context.Context, b *Builder, requestUUID string, callback func(ctx context.Context, rd RemoteData[T]) error) <-chan RemoteData[T] {
	in := BuildFromRequestUUID[T](ctx, b, requestUUID)
	out := make(chan RemoteData[T])

	go func() {
		defer close(out)

		called := false
		for rd := range in {
			if rd.HasSucceeded() && !called {
				called = true
				if err := callback(ctx, rd); err != nil {
					b.logger.Error("await callback failed", "uuid", requestUUID, "error", err)
				}
			}

			select {
			case out <- rd:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// ErrStreamClosed is returned when a stream ends before the awaited value
var ErrStreamClosed = errors.New("remote data stream closed")

// FirstCompleted returns the first value that succeeded or failed
func FirstCompleted[T any](ctx context.Context, ch <-chan RemoteData[T]) (RemoteData[T], error) {
	return first(ctx, ch, RemoteData[T].HasCompleted)
}

// FirstSucceeded returns the first successful value
func FirstSucceeded[T any](ctx context.Context, ch <-chan RemoteData[T]) (RemoteData[T], error) {
	return first(ctx, ch, RemoteData[T].HasSucceeded)
}

func first[T any](ctx context.Context, ch <-chan RemoteData[T], match func(RemoteData[T]) bool) (RemoteData[T], error) {
	var zero RemoteData[T]
	for {
		select {
		case rd, ok := <-ch:
			if !ok {
				if err := ctx.Err(); err != nil {
					return zero, err
				}
				return zero, ErrStreamClosed
			}
			if match(rd) {
				return rd, nil
			}
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}
