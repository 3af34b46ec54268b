package halcache

import (
	"net/http"
	"time"
)

// RemoteData is a snapshot of a request's lifecycle together with its
// resolved payload. It is derived from the registry and the object cache and
// never stored.
type RemoteData[T any] struct {
	RequestUUID   string
	State         RequestEntryState
	Payload       T
	StatusCode    int
	ErrorMessage  string
	TimeCompleted time.Time
	LastUpdated   time.Time
	TTL           time.Duration
}

func (rd RemoteData[T]) IsRequestPending() bool {
	return rd.State == RequestPending
}

func (rd RemoteData[T]) IsResponsePending() bool {
	return rd.State == ResponsePending
}

// IsLoading is true while the request is pending in either phase
func (rd RemoteData[T]) IsLoading() bool {
	return rd.State.IsPending()
}

func (rd RemoteData[T]) HasSucceeded() bool {
	return rd.State.IsSuccess()
}

func (rd RemoteData[T]) HasFailed() bool {
	return rd.State.IsError()
}

func (rd RemoteData[T]) IsStale() bool {
	return rd.State.IsStale()
}

func (rd RemoteData[T]) HasCompleted() bool {
	return rd.State.IsCompleted()
}

// HasNoContent is true for a successful 204
func (rd RemoteData[T]) HasNoContent() bool {
	return rd.HasSucceeded() && rd.StatusCode == http.StatusNoContent
}
