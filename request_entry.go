package halcache

import "time"

// RequestEntryState is the lifecycle state of a request entry
type RequestEntryState string

const (
	RequestPending  RequestEntryState = "RequestPending"
	ResponsePending RequestEntryState = "ResponsePending"
	Success         RequestEntryState = "Success"
	Error           RequestEntryState = "Error"
	SuccessStale    RequestEntryState = "SuccessStale"
	ErrorStale      RequestEntryState = "ErrorStale"
)

// IsPending is true while no response has been recorded
func (s RequestEntryState) IsPending() bool {
	return s == RequestPending || s == ResponsePending
}

// IsSuccess is true for fresh and stale successful responses
func (s RequestEntryState) IsSuccess() bool {
	return s == Success || s == SuccessStale
}

// IsError is true for fresh and stale failed responses
func (s RequestEntryState) IsError() bool {
	return s == Error || s == ErrorStale
}

// IsStale is true for both stale states
func (s RequestEntryState) IsStale() bool {
	return s == SuccessStale || s == ErrorStale
}

// IsCompleted is true once a response was recorded
func (s RequestEntryState) IsCompleted() bool {
	return s.IsSuccess() || s.IsError()
}

func staleStateFor(s RequestEntryState) RequestEntryState {
	switch s {
	case Success:
		return SuccessStale
	case Error:
		return ErrorStale
	default:
		return s
	}
}

// ParsedResponse is the typed envelope a ResponseParser produces
type ParsedResponse struct {
	IsSuccessful bool   `json:"is_successful"`
	StatusCode   int    `json:"status_code"`
	StatusText   string `json:"status_text,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	// PayloadLink is the self link of the top level object written to the cache
	PayloadLink string `json:"payload_link,omitempty"`

	// Uncacheable holds a payload that has no self link and lives only on the response
	Uncacheable any `json:"uncacheable,omitempty"`

	TimeCompleted time.Time `json:"time_completed"`
}

// RequestEntry is an immutable snapshot of a request and its response
type RequestEntry struct {
	Request     *Request
	State       RequestEntryState
	Response    *ParsedResponse
	LastUpdated time.Time

	// TTL is how long the response stays fresh once recorded
	TTL time.Duration

	// staleOnArrival marks a pending entry that was invalidated before its response came in
	staleOnArrival bool
}

// IsExpired reports whether a completed entry has outlived its TTL
func (e *RequestEntry) IsExpired(now time.Time) bool {
	if e.Response == nil || e.TTL <= 0 {
		return false
	}
	return now.After(e.Response.TimeCompleted.Add(e.TTL))
}

// isValid reports whether the entry can answer a cached GET at now
func (e *RequestEntry) isValid(now time.Time) bool {
	if e == nil || e.State.IsStale() {
		return false
	}
	if e.State.IsPending() {
		return !e.staleOnArrival
	}
	return !e.IsExpired(now)
}

type actionType int

const (
	actionConfigure actionType = iota
	actionExecute
	actionComplete
	actionStale
	actionRemove
)

type action struct {
	kind      actionType
	uuid      string
	request   *Request
	response  *ParsedResponse
	ttl       time.Duration
	timestamp time.Time
}

// reduceEntry applies a single action to an entry and returns the next one.
// prev is never modified. A nil result removes the entry.
func reduceEntry(prev *RequestEntry, a action) *RequestEntry {
	switch a.kind {
	case actionConfigure:
		return &RequestEntry{
			Request:     a.request,
			State:       RequestPending,
			LastUpdated: a.timestamp,
		}

	case actionExecute:
		if prev == nil || prev.State != RequestPending {
			return prev
		}
		next := *prev
		next.State = ResponsePending
		next.LastUpdated = a.timestamp
		return &next

	case actionComplete:
		if prev == nil || !prev.State.IsPending() {
			return prev
		}
		next := *prev
		next.Response = a.response
		next.TTL = a.ttl
		next.LastUpdated = a.timestamp
		if a.response.IsSuccessful {
			next.State = Success
		} else {
			next.State = Error
		}
		if prev.staleOnArrival {
			next.State = staleStateFor(next.State)
			next.staleOnArrival = false
		}
		return &next

	case actionStale:
		if prev == nil || prev.State.IsStale() || prev.staleOnArrival {
			return prev
		}
		next := *prev
		if prev.State.IsPending() {
			next.staleOnArrival = true
		} else {
			next.State = staleStateFor(prev.State)
		}
		next.LastUpdated = a.timestamp
		return &next

	case actionRemove:
		return nil
	}

	return prev
}
