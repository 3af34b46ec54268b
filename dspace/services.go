package dspace

import (
	"context"
	"fmt"

	"github.com/AnandSundar/go-halcache"
)

// Service is what every data service offers regardless of its model
type Service interface {
	ResourceType() string
	LinkPath() string
	Endpoint(ctx context.Context) (string, error)
	InvalidateByHref(ctx context.Context, href string) (bool, error)
}

// Services maps resource type tags to their data service
type Services map[string]Service

// Lookup returns the service of resourceType
func (s Services) Lookup(resourceType string) (Service, error) {
	service, ok := s[resourceType]
	if !ok {
		return nil, fmt.Errorf("no data service for resource type %q", resourceType)
	}
	return service, nil
}

// Repository bundles the typed data services of a client
type Repository struct {
	Communities   *DataService[*Community]
	Collections   *DataService[*Collection]
	Items         *DataService[*Item]
	Bitstreams    *DataService[*Bitstream]
	Relationships *RelationshipService

	Services Services
}

// NewRepository registers the DSpace types on the client's type registry
// and creates a data service per type. Call it once per client.
func NewRepository(client *halcache.Client, opts ...ServiceOption) *Repository {
	RegisterTypes(client.Types)

	items := NewDataService[*Item](client, TypeItem, "items", opts...)
	r := &Repository{
		Communities:   NewDataService[*Community](client, TypeCommunity, "communities", opts...),
		Collections:   NewDataService[*Collection](client, TypeCollection, "collections", opts...),
		Items:         items,
		Bitstreams:    NewDataService[*Bitstream](client, TypeBitstream, "bitstreams", opts...),
		Relationships: NewRelationshipService(client, items, opts...),
	}

	r.Services = Services{
		TypeCommunity:    r.Communities,
		TypeCollection:   r.Collections,
		TypeItem:         r.Items,
		TypeBitstream:    r.Bitstreams,
		TypeRelationship: r.Relationships,
	}
	return r
}
