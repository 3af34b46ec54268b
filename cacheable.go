package halcache

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// CacheableObject is a normalized resource that can be stored in the object cache
type CacheableObject interface {
	// Self returns the canonical self link used as cache key
	Self() string
	// ResourceType returns the HAL type tag
	ResourceType() string
}

// Identifiable is implemented by objects that also carry a uuid
type Identifiable interface {
	GetUUID() string
}

// HALLink is a single HAL link
type HALLink struct {
	Href      string `json:"href"`
	Templated bool   `json:"templated,omitempty"`
	Name      string `json:"name,omitempty"`
}

// LinkList holds the links of one relation. HAL allows either a single link
// object or an array of them.
type LinkList []HALLink

func (l *LinkList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var links []HALLink
		if err := json.Unmarshal(data, &links); err != nil {
			return err
		}
		*l = links
		return nil
	}

	var link HALLink
	if err := json.Unmarshal(data, &link); err != nil {
		return err
	}
	*l = LinkList{link}
	return nil
}

func (l LinkList) MarshalJSON() ([]byte, error) {
	if len(l) == 1 {
		return json.Marshal(l[0])
	}
	return json.Marshal([]HALLink(l))
}

// Links maps relation names to their links
type Links map[string]LinkList

// Href returns the first href of rel, or ""
func (l Links) Href(rel string) string {
	if links := l[rel]; len(links) > 0 {
		return links[0].Href
	}
	return ""
}

// HALResource holds the fields every HAL resource shares. Embed it in models.
type HALResource struct {
	Type  string `json:"type,omitempty"`
	Links Links  `json:"_links,omitempty"`
}

func (r *HALResource) Self() string {
	return r.Links.Href("self")
}

func (r *HALResource) ResourceType() string {
	return r.Type
}

// Link returns the href of relation rel
func (r *HALResource) Link(rel string) string {
	return r.Links.Href(rel)
}

// Resource is a HAL resource of a type nobody registered. Its fields are kept verbatim.
type Resource struct {
	HALResource
	Raw json.RawMessage `json:"-"`
}

func (r *Resource) UnmarshalJSON(data []byte) error {
	var hal HALResource
	if err := json.Unmarshal(data, &hal); err != nil {
		return err
	}
	r.HALResource = hal
	r.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (r *Resource) MarshalJSON() ([]byte, error) {
	if len(r.Raw) > 0 {
		return r.Raw, nil
	}
	return json.Marshal(r.HALResource)
}

// Factory returns a new zero value of a registered resource type
type Factory func() CacheableObject

// TypeRegistry maps HAL type tags to factories. Register everything at
// startup; lookups are safe for concurrent use.
type TypeRegistry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewTypeRegistry returns an empty registry
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		factories: make(map[string]Factory),
	}
}

// Register binds resourceType to factory. It panics on an empty type, a nil
// factory, or a type registered twice.
func (r *TypeRegistry) Register(resourceType string, factory Factory) {
	if resourceType == "" || factory == nil {
		panic("halcache: Register requires a type and a factory")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[resourceType]; exists {
		panic(fmt.Sprintf("halcache: type %q registered twice", resourceType))
	}
	r.factories[resourceType] = factory
}

// Lookup returns the factory of resourceType
func (r *TypeRegistry) Lookup(resourceType string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[resourceType]
	return factory, ok
}

// Types lists the registered type tags in order
func (r *TypeRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Decode builds a typed object from data. Unregistered types decode into *Resource.
func (r *TypeRegistry) Decode(resourceType string, data []byte) (CacheableObject, error) {
	var obj CacheableObject
	if factory, ok := r.Lookup(resourceType); ok {
		obj = factory()
	} else {
		obj = &Resource{}
	}

	if err := json.Unmarshal(data, obj); err != nil {
		return nil, fmt.Errorf("%w: decoding %q: %v", ErrUnexpectedPayload, resourceType, err)
	}
	return obj, nil
}
