// Package transport sends halcache requests over HTTP
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/AnandSundar/go-halcache"
	"github.com/pquerna/cachecontrol"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	// ContentTypeHAL is sent as Accept on every request
	ContentTypeHAL = "application/hal+json"

	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "go-halcache"
)

// HTTPTransport implements halcache.Transport on top of net/http
type HTTPTransport struct {
	client        *http.Client
	limiter       *rate.Limiter
	authorization string
	userAgent     string
	privateCache  bool
	coalesce      bool
	logger        *slog.Logger

	group singleflight.Group
}

// Option configures an HTTPTransport
type Option func(*HTTPTransport)

// WithHTTPClient sets the underlying client
func WithHTTPClient(client *http.Client) Option {
	return func(t *HTTPTransport) {
		if client != nil {
			t.client = client
		}
	}
}

// WithRateLimit caps outgoing requests at rps per second with the given burst
func WithRateLimit(rps float64, burst int) Option {
	return func(t *HTTPTransport) {
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithAuthorization sets the Authorization header sent when a request carries none
func WithAuthorization(value string) Option {
	return func(t *HTTPTransport) {
		t.authorization = value
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(userAgent string) Option {
	return func(t *HTTPTransport) {
		t.userAgent = userAgent
	}
}

// WithPrivateCache evaluates caching headers as a private cache would
func WithPrivateCache() Option {
	return func(t *HTTPTransport) {
		t.privateCache = true
	}
}

// WithRequestCoalescing shares one round trip between identical GETs in flight
func WithRequestCoalescing() Option {
	return func(t *HTTPTransport) {
		t.coalesce = true
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(t *HTTPTransport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewHTTPTransport creates a transport
func NewHTTPTransport(opts ...Option) *HTTPTransport {
	t := &HTTPTransport{
		client:    &http.Client{Timeout: defaultTimeout},
		userAgent: defaultUserAgent,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Do sends req. Only a failure to get any response is returned as an error.
func (t *HTTPTransport) Do(ctx context.Context, req *halcache.Request) (*halcache.RawResponse, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	if !t.coalesce || req.Method != halcache.MethodGet {
		return t.roundTrip(ctx, req)
	}

	v, err, shared := t.group.Do(t.coalesceKey(req), func() (any, error) {
		return t.roundTrip(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		t.logger.Debug("shared in-flight response", "href", req.Href, "uuid", req.UUID)
	}
	return cloneRaw(v.(*halcache.RawResponse)), nil
}

func (t *HTTPTransport) coalesceKey(req *halcache.Request) string {
	return req.Href + "\x00" + req.Headers.Get("Authorization")
}

func (t *HTTPTransport) roundTrip(ctx context.Context, req *halcache.Request) (*halcache.RawResponse, error) {
	httpReq, err := t.newHTTPRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Href, err)
	}
	defer res.Body.Close()

	payload, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	t.logger.Debug("response received",
		"method", req.Method,
		"href", req.Href,
		"status", res.StatusCode,
		"duration", time.Since(start),
	)

	return &halcache.RawResponse{
		StatusCode: res.StatusCode,
		StatusText: statusText(res),
		Headers:    res.Header,
		Payload:    payload,
		Expires:    t.expires(httpReq, res),
	}, nil
}

func (t *HTTPTransport) newHTTPRequest(ctx context.Context, req *halcache.Request) (*http.Request, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, string(req.Method), req.Href, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	for key, values := range req.Headers {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", ContentTypeHAL)
	}
	if body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if t.authorization != "" && httpReq.Header.Get("Authorization") == "" {
		httpReq.Header.Set("Authorization", t.authorization)
	}
	if t.userAgent != "" {
		httpReq.Header.Set("User-Agent", t.userAgent)
	}

	return httpReq, nil
}

// expires turns caching headers into a freshness deadline, or zero when the
// response says nothing or must not be stored
func (t *HTTPTransport) expires(req *http.Request, res *http.Response) time.Time {
	if req.Method != http.MethodGet {
		return time.Time{}
	}
	if res.Header.Get("Cache-Control") == "" && res.Header.Get("Expires") == "" {
		return time.Time{}
	}

	reasons, expiration, err := cachecontrol.CachableResponse(req, res, cachecontrol.Options{PrivateCache: t.privateCache})
	if err != nil {
		t.logger.Warn("could not evaluate caching headers", "href", req.URL.String(), "error", err)
		return time.Time{}
	}
	if len(reasons) > 0 || !expiration.After(time.Now()) {
		return time.Time{}
	}
	return expiration
}

// statusText strips the numeric code from res.Status
func statusText(res *http.Response) string {
	if text, ok := strings.CutPrefix(res.Status, fmt.Sprintf("%d ", res.StatusCode)); ok {
		return text
	}
	return http.StatusText(res.StatusCode)
}

func cloneRaw(raw *halcache.RawResponse) *halcache.RawResponse {
	c := *raw
	c.Headers = raw.Headers.Clone()
	c.Payload = append([]byte(nil), raw.Payload...)
	return &c
}
