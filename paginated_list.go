package halcache

// PaginatedListType is the type tag of normalized lists in the object cache
const PaginatedListType = "paginated-list"

// PageInfo describes one page of a list. CurrentPage is 1-indexed.
type PageInfo struct {
	ElementsPerPage int    `json:"elementsPerPage"`
	TotalElements   int    `json:"totalElements"`
	TotalPages      int    `json:"totalPages"`
	CurrentPage     int    `json:"currentPage"`
	Self            string `json:"self,omitempty"`
	First           string `json:"first,omitempty"`
	Prev            string `json:"prev,omitempty"`
	Next            string `json:"next,omitempty"`
	Last            string `json:"last,omitempty"`
}

// HasNext reports whether another page follows
func (p PageInfo) HasNext() bool {
	return p.Next != "" || p.CurrentPage < p.TotalPages
}

// NormalizedList is how a paginated response is cached: the page info and
// the self links of its elements, which are cached on their own.
type NormalizedList struct {
	HALResource
	PageInfo PageInfo `json:"pageInfo"`
	Page     []string `json:"page"`
}

// PaginatedList is a resolved page of T
type PaginatedList[T any] struct {
	Self     string
	PageInfo PageInfo
	Page     []T
}

// Len returns the number of elements on this page
func (l *PaginatedList[T]) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Page)
}

// TotalElements returns the element count across all pages
func (l *PaginatedList[T]) TotalElements() int {
	if l == nil {
		return 0
	}
	return l.PageInfo.TotalElements
}
