package halcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReduceEntry(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	req := &Request{UUID: "req-1", Href: "https://rest.api/core/items/1", Method: MethodGet}

	configured := reduceEntry(nil, action{kind: actionConfigure, uuid: req.UUID, request: req, timestamp: start})
	require.NotNil(t, configured)
	assert.Equal(t, RequestPending, configured.State)
	assert.Nil(t, configured.Response)

	executing := reduceEntry(configured, action{kind: actionExecute, timestamp: start.Add(time.Second)})
	assert.Equal(t, ResponsePending, executing.State)
	assert.Equal(t, RequestPending, configured.State, "previous snapshot is untouched")
	assert.Same(t, executing, reduceEntry(executing, action{kind: actionExecute}), "execute only applies once")

	response := &ParsedResponse{IsSuccessful: true, StatusCode: 200}
	completed := reduceEntry(executing, action{kind: actionComplete, response: response, ttl: time.Minute, timestamp: start.Add(2 * time.Second)})
	assert.Equal(t, Success, completed.State)
	assert.Equal(t, time.Minute, completed.TTL)
	assert.Same(t, response, completed.Response)
	assert.Same(t, completed, reduceEntry(completed, action{kind: actionComplete, response: &ParsedResponse{}}), "a response is recorded once")

	stale := reduceEntry(completed, action{kind: actionStale, timestamp: start.Add(3 * time.Second)})
	assert.Equal(t, SuccessStale, stale.State)
	assert.Same(t, stale, reduceEntry(stale, action{kind: actionStale}))

	assert.Nil(t, reduceEntry(stale, action{kind: actionRemove}))
	assert.Nil(t, reduceEntry(nil, action{kind: actionStale}))
	assert.Nil(t, reduceEntry(nil, action{kind: actionComplete, response: response}))
}

func TestReduceEntry_Failure(t *testing.T) {
	req := &Request{UUID: "req-1", Href: "https://rest.api/core/items/1", Method: MethodGet}
	entry := reduceEntry(nil, action{kind: actionConfigure, request: req})

	entry = reduceEntry(entry, action{kind: actionComplete, response: &ParsedResponse{StatusCode: 500}})
	assert.Equal(t, Error, entry.State)

	entry = reduceEntry(entry, action{kind: actionStale})
	assert.Equal(t, ErrorStale, entry.State)
	assert.True(t, entry.State.IsError())
	assert.True(t, entry.State.IsCompleted())
}

func TestReduceEntry_StaleWhilePending(t *testing.T) {
	req := &Request{UUID: "req-1", Href: "https://rest.api/core/items/1", Method: MethodGet}
	entry := reduceEntry(nil, action{kind: actionConfigure, request: req})

	marked := reduceEntry(entry, action{kind: actionStale})
	assert.Equal(t, RequestPending, marked.State)
	assert.True(t, marked.staleOnArrival)
	assert.False(t, marked.isValid(time.Now()))
	assert.Same(t, marked, reduceEntry(marked, action{kind: actionStale}))

	executing := reduceEntry(marked, action{kind: actionExecute})
	assert.True(t, executing.staleOnArrival)

	completed := reduceEntry(executing, action{kind: actionComplete, response: &ParsedResponse{IsSuccessful: true, StatusCode: 200}})
	assert.Equal(t, SuccessStale, completed.State)
	assert.False(t, completed.staleOnArrival)
}

func TestRequestEntry_IsValid(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	done := &ParsedResponse{IsSuccessful: true, TimeCompleted: now.Add(-time.Minute)}

	tests := []struct {
		name  string
		entry *RequestEntry
		want  bool
	}{
		{"nil", nil, false},
		{"pending", &RequestEntry{State: ResponsePending}, true},
		{"pending but invalidated", &RequestEntry{State: RequestPending, staleOnArrival: true}, false},
		{"fresh", &RequestEntry{State: Success, Response: done, TTL: time.Hour}, true},
		{"expired", &RequestEntry{State: Success, Response: done, TTL: time.Second}, false},
		{"no ttl", &RequestEntry{State: Error, Response: done}, true},
		{"stale", &RequestEntry{State: SuccessStale, Response: done, TTL: time.Hour}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.entry.isValid(now))
		})
	}
}
