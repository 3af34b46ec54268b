package halcache

import "errors"

var (
	// ErrNotFound is returned when an object is not present in the cache or store
	ErrNotFound = errors.New("cached object not found")

	// ErrRequestNotFound is returned when no request entry exists for a uuid
	ErrRequestNotFound = errors.New("request entry not found")

	// ErrInvalidRequest is returned when a request fails validation
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNoSelfLink is returned when an object without a self link is offered to the cache
	ErrNoSelfLink = errors.New("object has no self link")

	// ErrUnknownEndpoint is returned when the root endpoint map has no link with the given name
	ErrUnknownEndpoint = errors.New("unknown endpoint")

	// ErrUnexpectedPayload is returned when a payload cannot be turned into the requested type
	ErrUnexpectedPayload = errors.New("unexpected payload")
)
