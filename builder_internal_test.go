package halcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPickEntry(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	older := &RequestEntry{State: Success, LastUpdated: now}
	newer := &RequestEntry{State: Success, LastUpdated: now.Add(time.Second)}
	staleNewer := &RequestEntry{State: SuccessStale, LastUpdated: now.Add(time.Second)}
	pendingNewer := &RequestEntry{State: RequestPending, LastUpdated: now.Add(time.Second)}

	tests := []struct {
		name           string
		byHref, byUUID *RequestEntry
		want           *RequestEntry
	}{
		{"neither", nil, nil, nil},
		{"only href", older, nil, older},
		{"only uuid", nil, older, older},
		{"fresh uuid over stale href", staleNewer, older, older},
		{"fresh href over stale uuid", older, staleNewer, older},
		{"newer uuid", older, newer, newer},
		{"newer href", newer, older, newer},
		{"pending re-request wins", pendingNewer, older, pendingNewer},
		{"tie keeps href", older, &RequestEntry{State: Success, LastUpdated: now}, older},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Same(t, tt.want, pickEntry(tt.byHref, tt.byUUID))
		})
	}
}

func TestWatchers_Conflation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := newWatchers[int]()
	ch := w.watch(ctx, "key", func() int { return 0 })
	assert.Equal(t, 0, <-ch)

	w.publish("key", 1)
	w.publish("key", 2)
	w.publish("other", 99)

	// 1 may have been picked up before 2 was published, but 2 is always last
	v := <-ch
	if v == 1 {
		v = <-ch
	}
	assert.Equal(t, 2, v)

	select {
	case v := <-ch:
		t.Fatalf("unexpected value %d", v)
	case <-time.After(20 * time.Millisecond):
	}

	cancel()
	for range ch {
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Empty(t, w.subs)
}
