package halcache

import (
	"context"
	"net/http"
	"time"
)

//go:generate mockgen -source=transport.go -destination=mocks/transport.go -package=mocks

// Transport issues a request against the REST backend. Implementations return
// an error only when no response could be obtained at all; a non-2xx status is
// a response, not an error.
type Transport interface {
	Do(ctx context.Context, req *Request) (*RawResponse, error)
}

// RawResponse is what the transport got back from the backend
type RawResponse struct {
	StatusCode int
	StatusText string
	Headers    http.Header
	Payload    []byte

	// Expires is an optional freshness hint derived from caching headers
	Expires time.Time
}

// IsSuccessful reports a 2xx status
func (r *RawResponse) IsSuccessful() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
