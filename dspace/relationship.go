package dspace

import (
	"context"
	"errors"
	"net/url"
	"path"
	"strings"

	"github.com/AnandSundar/go-halcache"
)

// RelationshipService manages relationships between items. Mutations
// refresh both related items.
type RelationshipService struct {
	*DataService[*Relationship]

	items *DataService[*Item]
}

// NewRelationshipService creates the service; items is used to refresh related items
func NewRelationshipService(client *halcache.Client, items *DataService[*Item], opts ...ServiceOption) *RelationshipService {
	return &RelationshipService{
		DataService: NewDataService[*Relationship](client, TypeRelationship, "relationships", opts...),
		items:       items,
	}
}

// AddRelationship relates left and right through the relationship type typeID
func (s *RelationshipService) AddRelationship(ctx context.Context, typeID string, left, right *Item, leftwardValue, rightwardValue string) (halcache.RemoteData[*Relationship], error) {
	endpoint, err := s.Endpoint(ctx)
	if err != nil {
		return halcache.RemoteData[*Relationship]{}, err
	}

	params := url.Values{}
	params.Set("relationshipType", typeID)
	if leftwardValue != "" {
		params.Set("leftwardValue", leftwardValue)
	}
	if rightwardValue != "" {
		params.Set("rightwardValue", rightwardValue)
	}

	req, err := s.newRequest(halcache.MethodPost, endpoint+"?"+params.Encode(),
		halcache.WithBody([]byte(left.Self()+"\n"+right.Self())),
		halcache.WithHeader("Content-Type", "text/uri-list"),
	)
	if err != nil {
		return halcache.RemoteData[*Relationship]{}, err
	}

	rd, err := sendAndAwait[*Relationship](ctx, s.client, req)
	if err != nil {
		return rd, err
	}

	err = errors.Join(
		s.refreshItem(ctx, left.Self()),
		s.refreshItem(ctx, right.Self()),
	)
	return rd, err
}

// DeleteRelationship deletes the relationship with the given id.
// copyVirtualMetadata is one of none, all, left, right or configured.
func (s *RelationshipService) DeleteRelationship(ctx context.Context, id, copyVirtualMetadata string) (halcache.RemoteData[NoContent], error) {
	endpoint, err := s.Endpoint(ctx)
	if err != nil {
		return halcache.RemoteData[NoContent]{}, err
	}
	href := endpoint + "/" + url.PathEscape(id)

	// the ends are only known from the relationship itself
	rel, err := s.fetch(ctx, href)
	if err != nil {
		s.logger.Warn("could not resolve relationship before deleting it", "href", href, "error", err)
	}

	if copyVirtualMetadata == "" {
		copyVirtualMetadata = "none"
	}
	req, err := s.newRequest(halcache.MethodDelete, href+"?copyVirtualMetadata="+url.QueryEscape(copyVirtualMetadata),
		halcache.WithParser(halcache.StatusCodeOnlyParser{}),
	)
	if err != nil {
		return halcache.RemoteData[NoContent]{}, err
	}

	rd, err := sendAndAwait[NoContent](ctx, s.client, req)
	if err != nil {
		return rd, err
	}
	if rd.HasSucceeded() {
		if err := s.client.Cache.Remove(ctx, href); err != nil {
			s.logger.Warn("could not evict deleted relationship", "href", href, "error", err)
		}
		s.client.Registry.RemoveByHrefSubstring(href)
	}
	if rel == nil {
		return rd, nil
	}

	err = errors.Join(
		s.refreshItem(ctx, rel.LeftItem()),
		s.refreshItem(ctx, rel.RightItem()),
	)
	return rd, err
}

func (s *RelationshipService) fetch(ctx context.Context, href string) (*Relationship, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, err := s.FindByHref(ctx, href, true)
	if err != nil {
		return nil, err
	}
	rd, err := halcache.FirstSucceeded(ctx, ch)
	if err != nil {
		return nil, err
	}
	return rd.Payload, nil
}

// refreshItem drops the item and every request mentioning it, then fetches it again
func (s *RelationshipService) refreshItem(ctx context.Context, href string) error {
	if href == "" {
		return nil
	}

	if err := s.client.Cache.Remove(ctx, href); err != nil {
		return err
	}
	s.client.Registry.RemoveByHrefSubstring(path.Base(href))

	_, err := s.items.sendGet(ctx, href, true)
	return err
}

// FindByItem streams the relationships of item
func (s *RelationshipService) FindByItem(ctx context.Context, item *Item, options FindListOptions, useCached bool) (<-chan halcache.RemoteData[*halcache.PaginatedList[*Relationship]], error) {
	href := item.Link("relationships")
	if href == "" {
		href = strings.TrimSuffix(item.Self(), "/") + "/relationships"
	}
	return s.FindListByHref(ctx, options.Href(href), useCached)
}

// FindByLabel streams the relationships of item with the given leftward or rightward label
func (s *RelationshipService) FindByLabel(ctx context.Context, item *Item, label string, options FindListOptions, useCached bool) (<-chan halcache.RemoteData[*halcache.PaginatedList[*Relationship]], error) {
	options.SearchParams = append(append([]RequestParam(nil), options.SearchParams...),
		RequestParam{Name: "label", Value: label},
		RequestParam{Name: "dso", Value: item.UUID},
	)
	return s.SearchBy(ctx, "byLabel", options, useCached)
}
