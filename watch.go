package halcache

import (
	"context"
	"sync"
)

// watcher receives the latest value published for a key. Its channel holds at
// most one value; a newer value replaces one that was not read yet.
type watcher[T any] struct {
	ch chan T
}

// watchers is a keyed pub/sub of latest values. Publishing never blocks.
type watchers[T any] struct {
	mu   sync.Mutex
	subs map[string]map[*watcher[T]]struct{}
}

func newWatchers[T any]() *watchers[T] {
	return &watchers[T]{
		subs: make(map[string]map[*watcher[T]]struct{}),
	}
}

func (w *watchers[T]) subscribe(key string) *watcher[T] {
	w.mu.Lock()
	defer w.mu.Unlock()

	sub := &watcher[T]{ch: make(chan T, 1)}
	if w.subs[key] == nil {
		w.subs[key] = make(map[*watcher[T]]struct{})
	}
	w.subs[key][sub] = struct{}{}
	return sub
}

func (w *watchers[T]) unsubscribe(key string, sub *watcher[T]) {
	w.mu.Lock()
	defer w.mu.Unlock()

	delete(w.subs[key], sub)
	if len(w.subs[key]) == 0 {
		delete(w.subs, key)
	}
}

func (w *watchers[T]) publish(key string, value T) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for sub := range w.subs[key] {
		select {
		case sub.ch <- value:
			continue
		default:
		}
		// drop the unread value, keep the newest
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- value:
		default:
		}
	}
}

// watch emits current() first and then every value published for key, until
// ctx is done. Values published while the reader is busy are conflated.
func (w *watchers[T]) watch(ctx context.Context, key string, current func() T) <-chan T {
	sub := w.subscribe(key)
	out := make(chan T)

	go func() {
		defer close(out)
		defer w.unsubscribe(key, sub)

		value := current()
		for {
			select {
			case out <- value:
			case <-ctx.Done():
				return
			}

			select {
			case value = <-sub.ch:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
