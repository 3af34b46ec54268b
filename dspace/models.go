// Package dspace holds the DSpace resource models and the data services that
// read and write them through a halcache.Client.
package dspace

import (
	"time"

	"github.com/AnandSundar/go-halcache"
)

// Resource type tags as sent by the REST API
const (
	TypeCommunity    = "community"
	TypeCollection   = "collection"
	TypeItem         = "item"
	TypeBitstream    = "bitstream"
	TypeRelationship = "relationship"
)

// MetadataValue is one value of a metadata field
type MetadataValue struct {
	Value      string  `json:"value"`
	Language   *string `json:"language,omitempty"`
	Authority  *string `json:"authority,omitempty"`
	Confidence int     `json:"confidence"`
	Place      int     `json:"place"`
}

// MetadataMap maps a field like dc.title to its values
type MetadataMap map[string][]MetadataValue

// First returns the first value of key, or ""
func (m MetadataMap) First(key string) string {
	if values := m[key]; len(values) > 0 {
		return values[0].Value
	}
	return ""
}

// All returns every value of key
func (m MetadataMap) All(key string) []string {
	values := make([]string, 0, len(m[key]))
	for _, v := range m[key] {
		values = append(values, v.Value)
	}
	return values
}

// DSpaceObject holds what communities, collections, items and bitstreams share
type DSpaceObject struct {
	halcache.HALResource
	ID       string      `json:"id"`
	UUID     string      `json:"uuid"`
	Name     string      `json:"name"`
	Handle   string      `json:"handle,omitempty"`
	Metadata MetadataMap `json:"metadata,omitempty"`
}

func (o *DSpaceObject) GetUUID() string {
	return o.UUID
}

// Title returns dc.title, falling back to the name
func (o *DSpaceObject) Title() string {
	if title := o.Metadata.First("dc.title"); title != "" {
		return title
	}
	return o.Name
}

type Community struct {
	DSpaceObject
}

type Collection struct {
	DSpaceObject
}

type Item struct {
	DSpaceObject
	InArchive    bool      `json:"inArchive"`
	Discoverable bool      `json:"discoverable"`
	Withdrawn    bool      `json:"withdrawn"`
	LastModified time.Time `json:"lastModified"`
}

// EntityType returns the dspace.entity.type of the item, if any
func (i *Item) EntityType() string {
	return i.Metadata.First("dspace.entity.type")
}

// CheckSum is the checksum of a bitstream's content
type CheckSum struct {
	Algorithm string `json:"checkSumAlgorithm"`
	Value     string `json:"value"`
}

type Bitstream struct {
	DSpaceObject
	SizeBytes int64    `json:"sizeBytes"`
	CheckSum  CheckSum `json:"checkSum"`
}

// Relationship links two items. Its ends are only available as links.
type Relationship struct {
	halcache.HALResource
	ID               string `json:"id"`
	RelationshipType string `json:"relationshipType,omitempty"`
	LeftPlace        int    `json:"leftPlace"`
	RightPlace       int    `json:"rightPlace"`
	LeftwardValue    string `json:"leftwardValue,omitempty"`
	RightwardValue   string `json:"rightwardValue,omitempty"`
}

// LeftItem returns the href of the left item
func (r *Relationship) LeftItem() string {
	return r.Link("leftItem")
}

// RightItem returns the href of the right item
func (r *Relationship) RightItem() string {
	return r.Link("rightItem")
}

// RegisterTypes binds the DSpace type tags to their models. It panics when
// one of them is already registered.
func RegisterTypes(types *halcache.TypeRegistry) {
	types.Register(TypeCommunity, func() halcache.CacheableObject { return &Community{} })
	types.Register(TypeCollection, func() halcache.CacheableObject { return &Collection{} })
	types.Register(TypeItem, func() halcache.CacheableObject { return &Item{} })
	types.Register(TypeBitstream, func() halcache.CacheableObject { return &Bitstream{} })
	types.Register(TypeRelationship, func() halcache.CacheableObject { return &Relationship{} })
}
