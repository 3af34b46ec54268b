package halcache

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
)

// ResponseParser turns a successful raw response into a ParsedResponse.
// Parsers never fail: a payload of an unexpected shape is logged and
// produces an empty result.
type ResponseParser interface {
	Parse(ctx context.Context, req *Request, raw *RawResponse) *ParsedResponse
}

// DSOParser normalizes HAL documents into the object cache. Every embedded
// resource with a self link is cached on its own; the response carries the
// self link of the top level resource.
type DSOParser struct {
	cache  *ObjectCache
	types  *TypeRegistry
	logger *slog.Logger
}

// NewDSOParser returns a parser that writes into cache, decoding resources through types
func NewDSOParser(cache *ObjectCache, types *TypeRegistry, logger *slog.Logger) *DSOParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &DSOParser{
		cache:  cache,
		types:  types,
		logger: logger,
	}
}

type halPage struct {
	Size          int `json:"size"`
	TotalElements int `json:"totalElements"`
	TotalPages    int `json:"totalPages"`
	Number        int `json:"number"`
}

type halDocument struct {
	Type     string                     `json:"type"`
	Links    Links                      `json:"_links"`
	Embedded map[string]json.RawMessage `json:"_embedded"`
	Page     *halPage                   `json:"page"`
}

func (p *DSOParser) Parse(ctx context.Context, req *Request, raw *RawResponse) *ParsedResponse {
	response := &ParsedResponse{
		IsSuccessful: true,
		StatusCode:   raw.StatusCode,
		StatusText:   raw.StatusText,
	}

	if len(bytes.TrimSpace(raw.Payload)) == 0 {
		return response
	}
	if !isJSONObject(raw.Payload) {
		p.logger.Warn("response is not a HAL object", "href", req.Href, "uuid", req.UUID)
		return response
	}

	response.PayloadLink = p.process(ctx, req, raw.Payload, true)
	return response
}

// process caches the resource in data and everything embedded in it, and
// returns the self link under which data was cached, or "".
func (p *DSOParser) process(ctx context.Context, req *Request, data []byte, topLevel bool) string {
	var doc halDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		p.logger.Warn("could not read HAL resource", "href", req.Href, "error", err)
		return ""
	}

	self := doc.Links.Href("self")
	var alternativeLink string
	if topLevel && req.Method.IsIdempotentRead() && req.Href != self {
		alternativeLink = req.Href
	}

	rels := make([]string, 0, len(doc.Embedded))
	for rel := range doc.Embedded {
		rels = append(rels, rel)
	}
	sort.Strings(rels)

	var pageLinks []string
	pageFound := false
	for _, rel := range rels {
		value := doc.Embedded[rel]
		switch {
		case isJSONArray(value):
			var items []json.RawMessage
			if err := json.Unmarshal(value, &items); err != nil {
				p.logger.Warn("could not read embedded list", "rel", rel, "href", req.Href, "error", err)
				continue
			}
			links := make([]string, 0, len(items))
			for _, item := range items {
				if link := p.process(ctx, req, item, false); link != "" {
					links = append(links, link)
				}
			}
			if !pageFound {
				pageLinks = links
				pageFound = true
			}
		case isJSONObject(value):
			p.process(ctx, req, value, false)
		}
	}

	if doc.Page != nil {
		if self == "" && topLevel {
			self = req.Href
			alternativeLink = ""
		}
		if self == "" {
			return ""
		}
		if pageLinks == nil {
			pageLinks = []string{}
		}

		list := &NormalizedList{
			HALResource: HALResource{Type: PaginatedListType, Links: withSelf(doc.Links, self)},
			PageInfo:    pageInfoFrom(doc.Page, doc.Links, self),
			Page:        pageLinks,
		}
		return p.add(ctx, req, list, alternativeLink)
	}

	if doc.Type == "" {
		if topLevel {
			p.logger.Warn("HAL resource has no type", "href", req.Href)
		}
		return ""
	}

	obj, err := p.types.Decode(doc.Type, data)
	if err != nil {
		p.logger.Warn("could not decode resource", "type", doc.Type, "self", self, "error", err)
		return ""
	}
	if obj.Self() == "" {
		p.logger.Warn("resource has no self link", "type", doc.Type, "href", req.Href)
		return ""
	}

	return p.add(ctx, req, obj, alternativeLink)
}

func (p *DSOParser) add(ctx context.Context, req *Request, obj CacheableObject, alternativeLink string) string {
	if err := p.cache.Add(ctx, obj, req.ResponseTTL, req.UUID, alternativeLink); err != nil {
		p.logger.Error("failed to cache object", "self", obj.Self(), "request", req.UUID, "error", err)
	}
	return obj.Self()
}

func withSelf(links Links, self string) Links {
	next := make(Links, len(links)+1)
	for rel, l := range links {
		next[rel] = l
	}
	next["self"] = LinkList{{Href: self}}
	return next
}

// pageInfoFrom shifts the 0-indexed page number of the API to 1-indexed
func pageInfoFrom(page *halPage, links Links, self string) PageInfo {
	return PageInfo{
		ElementsPerPage: page.Size,
		TotalElements:   page.TotalElements,
		TotalPages:      page.TotalPages,
		CurrentPage:     page.Number + 1,
		Self:            self,
		First:           links.Href("first"),
		Prev:            links.Href("prev"),
		Next:            links.Href("next"),
		Last:            links.Href("last"),
	}
}

func isJSONObject(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func isJSONArray(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// StatusCodeOnlyParser drops the payload and keeps only the outcome
type StatusCodeOnlyParser struct{}

func (StatusCodeOnlyParser) Parse(_ context.Context, _ *Request, raw *RawResponse) *ParsedResponse {
	return &ParsedResponse{
		IsSuccessful: raw.IsSuccessful(),
		StatusCode:   raw.StatusCode,
		StatusText:   raw.StatusText,
	}
}

func (StatusCodeOnlyParser) IgnoresPayload() bool {
	return true
}

// TokenResponse is the outcome of a token request
type TokenResponse struct {
	Token        string `json:"token,omitempty"`
	IsSuccessful bool   `json:"is_successful"`
	StatusCode   int    `json:"status_code"`
	StatusText   string `json:"status_text,omitempty"`
}

// ParseToken reads a token payload. Only a 200 with a non-empty token succeeds.
func ParseToken(raw *RawResponse) TokenResponse {
	if raw.StatusCode == http.StatusOK {
		var body struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(raw.Payload, &body); err == nil && body.Token != "" {
			return TokenResponse{
				Token:        body.Token,
				IsSuccessful: true,
				StatusCode:   raw.StatusCode,
				StatusText:   raw.StatusText,
			}
		}
	}

	return TokenResponse{
		IsSuccessful: false,
		StatusCode:   raw.StatusCode,
		StatusText:   raw.StatusText,
	}
}

// TokenParser parses token responses; the TokenResponse is kept as the uncacheable payload
type TokenParser struct{}

func (TokenParser) Parse(_ context.Context, _ *Request, raw *RawResponse) *ParsedResponse {
	token := ParseToken(raw)
	return &ParsedResponse{
		IsSuccessful: token.IsSuccessful,
		StatusCode:   token.StatusCode,
		StatusText:   token.StatusText,
		Uncacheable:  token,
	}
}

// EndpointMap maps link names of the root resource to their hrefs
type EndpointMap map[string]string

// EndpointMapParser reads the link map of the root resource
type EndpointMapParser struct{}

func (EndpointMapParser) Parse(_ context.Context, _ *Request, raw *RawResponse) *ParsedResponse {
	var doc struct {
		Links Links `json:"_links"`
	}
	if err := json.Unmarshal(raw.Payload, &doc); err != nil || len(doc.Links) == 0 {
		return &ParsedResponse{
			StatusCode:   raw.StatusCode,
			StatusText:   raw.StatusText,
			ErrorMessage: "couldn't find an endpoint map in the response",
		}
	}

	endpoints := make(EndpointMap, len(doc.Links))
	for name := range doc.Links {
		endpoints[name] = doc.Links.Href(name)
	}

	return &ParsedResponse{
		IsSuccessful: true,
		StatusCode:   raw.StatusCode,
		StatusText:   raw.StatusText,
		Uncacheable:  endpoints,
	}
}
