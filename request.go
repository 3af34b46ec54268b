package halcache

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Method is an HTTP method understood by the registry
type Method string

const (
	MethodGet     Method = http.MethodGet
	MethodPost    Method = http.MethodPost
	MethodPut     Method = http.MethodPut
	MethodPatch   Method = http.MethodPatch
	MethodDelete  Method = http.MethodDelete
	MethodHead    Method = http.MethodHead
	MethodOptions Method = http.MethodOptions
)

// IsIdempotentRead reports whether responses to this method may be shared
// between callers. Only GET is deduplicated.
func (m Method) IsIdempotentRead() bool {
	return m == MethodGet
}

// Request is a single call against the REST backend
type Request struct {
	UUID        string        `validate:"required,uuid4"`
	Href        string        `validate:"required,url"`
	Method      Method        `validate:"required,oneof=GET POST PUT PATCH DELETE HEAD OPTIONS"`
	Body        []byte        `validate:"-"`
	Headers     http.Header   `validate:"-"`
	ResponseTTL time.Duration `validate:"gte=0"`

	// Parser turns the raw response into a ParsedResponse. Defaults to DSOParser.
	Parser ResponseParser `validate:"-"`
}

// RequestOption configures a Request
type RequestOption func(*Request)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// NewRequest builds and validates a request with a fresh uuid
func NewRequest(method Method, href string, opts ...RequestOption) (*Request, error) {
	req := &Request{
		UUID:   GenerateRequestID(),
		Href:   href,
		Method: method,
	}
	for _, opt := range opts {
		opt(req)
	}

	if err := requestValidator().Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	return req, nil
}

// GenerateRequestID returns a new random request uuid
func GenerateRequestID() string {
	return uuid.NewString()
}

// WithBody sets the request body
func WithBody(body []byte) RequestOption {
	return func(r *Request) {
		r.Body = body
	}
}

// WithHeader adds a header sent along with the request
func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		if r.Headers == nil {
			r.Headers = make(http.Header)
		}
		r.Headers.Add(key, value)
	}
}

// WithResponseTTL sets how long the response stays fresh
func WithResponseTTL(ttl time.Duration) RequestOption {
	return func(r *Request) {
		r.ResponseTTL = ttl
	}
}

// WithParser sets the response parser
func WithParser(parser ResponseParser) RequestOption {
	return func(r *Request) {
		r.Parser = parser
	}
}

// WithUUID overrides the generated request uuid
func WithUUID(id string) RequestOption {
	return func(r *Request) {
		r.UUID = id
	}
}
