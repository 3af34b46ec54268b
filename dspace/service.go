package dspace

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/AnandSundar/go-halcache"
)

// SortDirection orders a list
type SortDirection string

const (
	Ascending  SortDirection = "ASC"
	Descending SortDirection = "DESC"
)

// SortOptions sorts a list by Field
type SortOptions struct {
	Field     string
	Direction SortDirection
}

// RequestParam is an extra query parameter of a search
type RequestParam struct {
	Name  string
	Value string
}

// FindListOptions selects a page of a list. CurrentPage is 1-indexed; the
// API counts pages from 0.
type FindListOptions struct {
	CurrentPage     int
	ElementsPerPage int
	Sort            *SortOptions
	SearchParams    []RequestParam
}

// Href appends the options to base as query parameters. Parameters are
// sorted so equal options always give the same href.
func (o FindListOptions) Href(base string) string {
	params := url.Values{}
	if o.CurrentPage > 0 {
		params.Set("page", strconv.Itoa(o.CurrentPage-1))
	}
	if o.ElementsPerPage > 0 {
		params.Set("size", strconv.Itoa(o.ElementsPerPage))
	}
	if o.Sort != nil && o.Sort.Field != "" {
		direction := o.Sort.Direction
		if direction == "" {
			direction = Ascending
		}
		params.Set("sort", o.Sort.Field+","+string(direction))
	}
	for _, p := range o.SearchParams {
		params.Add(p.Name, p.Value)
	}

	if len(params) == 0 {
		return base
	}
	separator := "?"
	if strings.Contains(base, "?") {
		separator = "&"
	}
	return base + separator + params.Encode()
}

// NoContent is the payload of requests answered without a body
type NoContent struct{}

// ServiceOption configures a data service
type ServiceOption func(*serviceConfig)

type serviceConfig struct {
	reRequestOnStale bool
	responseTTL      time.Duration
	logger           *slog.Logger
}

// WithReRequestOnStale controls whether streams re-send their request when
// the value turns stale. Enabled by default.
func WithReRequestOnStale(enabled bool) ServiceOption {
	return func(c *serviceConfig) {
		c.reRequestOnStale = enabled
	}
}

// WithResponseTTL sets the ttl of responses to this service's requests
func WithResponseTTL(ttl time.Duration) ServiceOption {
	return func(c *serviceConfig) {
		c.responseTTL = ttl
	}
}

// WithServiceLogger sets the structured logger
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(c *serviceConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// DataService reads and writes resources of one type. Find methods send a
// GET and return a stream; the stream ends when ctx is done.
type DataService[T halcache.CacheableObject] struct {
	client       *halcache.Client
	linkPath     string
	resourceType string
	config       serviceConfig
	logger       *slog.Logger
}

// NewDataService creates a service for the endpoint named linkPath in the root link map
func NewDataService[T halcache.CacheableObject](client *halcache.Client, resourceType, linkPath string, opts ...ServiceOption) *DataService[T] {
	config := serviceConfig{
		reRequestOnStale: true,
		logger:           client.Config().Logger,
	}
	for _, opt := range opts {
		opt(&config)
	}

	return &DataService[T]{
		client:       client,
		linkPath:     linkPath,
		resourceType: resourceType,
		config:       config,
		logger:       config.logger.With("service", linkPath),
	}
}

func (s *DataService[T]) ResourceType() string {
	return s.resourceType
}

func (s *DataService[T]) LinkPath() string {
	return s.linkPath
}

// Endpoint returns the href of the service's endpoint
func (s *DataService[T]) Endpoint(ctx context.Context) (string, error) {
	return s.client.Endpoint(ctx, s.linkPath)
}

func (s *DataService[T]) newRequest(method halcache.Method, href string, opts ...halcache.RequestOption) (*halcache.Request, error) {
	if s.config.responseTTL > 0 {
		opts = append(opts, halcache.WithResponseTTL(s.config.responseTTL))
	}
	return halcache.NewRequest(method, href, opts...)
}

// sendGet sends a GET for href and returns its uuid
func (s *DataService[T]) sendGet(ctx context.Context, href string, useCached bool) (string, error) {
	req, err := s.newRequest(halcache.MethodGet, href)
	if err != nil {
		return "", err
	}
	if _, err := s.client.Send(ctx, req, useCached); err != nil {
		return "", err
	}
	return req.UUID, nil
}

// FindByHref streams the object at href
func (s *DataService[T]) FindByHref(ctx context.Context, href string, useCached bool) (<-chan halcache.RemoteData[T], error) {
	sentUUID, err := s.sendGet(ctx, href, useCached)
	if err != nil {
		return nil, err
	}

	resend := func() {
		if _, err := s.sendGet(ctx, href, true); err != nil {
			s.logger.Error("failed to re-request stale object", "href", href, "error", err)
		}
	}

	in := halcache.BuildSingle[T](ctx, s.client.Builder, href)
	return reRequestOnStale(ctx, in, sentUUID, useCached, s.config.reRequestOnStale, resend), nil
}

// FindByID streams the object with the given id
func (s *DataService[T]) FindByID(ctx context.Context, id string, useCached bool) (<-chan halcache.RemoteData[T], error) {
	endpoint, err := s.Endpoint(ctx)
	if err != nil {
		return nil, err
	}
	return s.FindByHref(ctx, endpoint+"/"+url.PathEscape(id), useCached)
}

// FindListByHref streams the list at href
func (s *DataService[T]) FindListByHref(ctx context.Context, href string, useCached bool) (<-chan halcache.RemoteData[*halcache.PaginatedList[T]], error) {
	sentUUID, err := s.sendGet(ctx, href, useCached)
	if err != nil {
		return nil, err
	}

	resend := func() {
		if _, err := s.sendGet(ctx, href, true); err != nil {
			s.logger.Error("failed to re-request stale list", "href", href, "error", err)
		}
	}

	in := halcache.BuildList[T](ctx, s.client.Builder, href)
	return reRequestOnStale(ctx, in, sentUUID, useCached, s.config.reRequestOnStale, resend), nil
}

// FindAll streams a page of every object of the endpoint
func (s *DataService[T]) FindAll(ctx context.Context, options FindListOptions, useCached bool) (<-chan halcache.RemoteData[*halcache.PaginatedList[T]], error) {
	endpoint, err := s.Endpoint(ctx)
	if err != nil {
		return nil, err
	}
	return s.FindListByHref(ctx, options.Href(endpoint), useCached)
}

// SearchHref returns the href of the named search method
func (s *DataService[T]) SearchHref(ctx context.Context, method string, options FindListOptions) (string, error) {
	endpoint, err := s.Endpoint(ctx)
	if err != nil {
		return "", err
	}
	return options.Href(endpoint + "/search/" + url.PathEscape(method)), nil
}

// SearchBy streams the result of the named search method
func (s *DataService[T]) SearchBy(ctx context.Context, method string, options FindListOptions, useCached bool) (<-chan halcache.RemoteData[*halcache.PaginatedList[T]], error) {
	href, err := s.SearchHref(ctx, method, options)
	if err != nil {
		return nil, err
	}
	return s.FindListByHref(ctx, href, useCached)
}

// Create posts obj to the endpoint and waits for the outcome. Lists of the
// endpoint are marked stale once it succeeded.
func (s *DataService[T]) Create(ctx context.Context, obj T) (halcache.RemoteData[T], error) {
	endpoint, err := s.Endpoint(ctx)
	if err != nil {
		return halcache.RemoteData[T]{}, err
	}

	body, err := json.Marshal(obj)
	if err != nil {
		return halcache.RemoteData[T]{}, fmt.Errorf("failed to marshal %s: %w", s.resourceType, err)
	}

	rd, err := s.write(ctx, halcache.MethodPost, endpoint, body)
	if err != nil {
		return rd, err
	}
	if rd.HasSucceeded() {
		if _, err := s.client.Registry.SetStaleWhere(ctx, isListOf(endpoint)); err != nil {
			return rd, err
		}
	}
	return rd, nil
}

// Put replaces the object at its self link and waits for the outcome
func (s *DataService[T]) Put(ctx context.Context, obj T) (halcache.RemoteData[T], error) {
	href := obj.Self()
	if href == "" {
		return halcache.RemoteData[T]{}, halcache.ErrNoSelfLink
	}

	body, err := json.Marshal(obj)
	if err != nil {
		return halcache.RemoteData[T]{}, fmt.Errorf("failed to marshal %s: %w", s.resourceType, err)
	}

	rd, err := s.write(ctx, halcache.MethodPut, href, body)
	if err != nil {
		return rd, err
	}
	if rd.HasSucceeded() {
		if _, err := s.InvalidateByHref(ctx, href); err != nil {
			return rd, err
		}
	}
	return rd, nil
}

func (s *DataService[T]) write(ctx context.Context, method halcache.Method, href string, body []byte) (halcache.RemoteData[T], error) {
	req, err := s.newRequest(method, href,
		halcache.WithBody(body),
		halcache.WithHeader("Content-Type", "application/json"),
	)
	if err != nil {
		return halcache.RemoteData[T]{}, err
	}
	return sendAndAwait[T](ctx, s.client, req)
}

// Delete removes the object with the given id and invalidates everything
// that depends on it
func (s *DataService[T]) Delete(ctx context.Context, id string) (halcache.RemoteData[NoContent], error) {
	endpoint, err := s.Endpoint(ctx)
	if err != nil {
		return halcache.RemoteData[NoContent]{}, err
	}
	return s.DeleteByHref(ctx, endpoint+"/"+url.PathEscape(id))
}

// DeleteByHref removes the object at href
func (s *DataService[T]) DeleteByHref(ctx context.Context, href string) (halcache.RemoteData[NoContent], error) {
	req, err := s.newRequest(halcache.MethodDelete, href, halcache.WithParser(halcache.StatusCodeOnlyParser{}))
	if err != nil {
		return halcache.RemoteData[NoContent]{}, err
	}

	rd, err := sendAndAwait[NoContent](ctx, s.client, req)
	if err != nil {
		return rd, err
	}
	if rd.HasSucceeded() {
		if _, err := s.InvalidateByHref(ctx, href); err != nil {
			return rd, err
		}
	}
	return rd, nil
}

// InvalidateByHref marks every request behind the object at href stale
func (s *DataService[T]) InvalidateByHref(ctx context.Context, href string) (bool, error) {
	return s.client.InvalidateByHref(ctx, href)
}

// isListOf matches the list and search hrefs of endpoint
func isListOf(endpoint string) func(href string) bool {
	return func(href string) bool {
		return href == endpoint ||
			strings.HasPrefix(href, endpoint+"?") ||
			strings.HasPrefix(href, endpoint+"/search/")
	}
}

// sendAndAwait sends req and blocks until its response is recorded
func sendAndAwait[V any](ctx context.Context, client *halcache.Client, req *halcache.Request) (halcache.RemoteData[V], error) {
	if _, err := client.Send(ctx, req, false); err != nil {
		return halcache.RemoteData[V]{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	return halcache.FirstCompleted(ctx, halcache.BuildFromRequestUUID[V](ctx, client.Builder, req.UUID))
}

// reRequestOnStale forwards in and calls resend whenever a stale value passes.
// With useCached a leading stale value is dropped; without it everything
// before the first value of sentUUID is dropped.
func reRequestOnStale[V any](ctx context.Context, in <-chan halcache.RemoteData[V], sentUUID string, useCached, enabled bool, resend func()) <-chan halcache.RemoteData[V] {
	out := make(chan halcache.RemoteData[V])

	go func() {
		defer close(out)

		started := false
		for rd := range in {
			if !started {
				if useCached && rd.IsStale() {
					continue
				}
				if !useCached && rd.RequestUUID != sentUUID {
					continue
				}
				started = true
			}

			if enabled && rd.IsStale() {
				resend()
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
