package store

import (
	"fmt"
	"math"
	"strings"
)

// Paging defaults and limits.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Order is one sort key.
type Order struct {
	Field string
	Desc  bool
}

func (o Order) String() string {
	if o.Desc {
		return o.Field + ",desc"
	}
	return o.Field + ",asc"
}

// ParseOrder parses the "field" or "field,asc|desc" form used in query strings.
func ParseOrder(s string) (Order, error) {
	field, dir, _ := strings.Cut(s, ",")
	field = strings.TrimSpace(field)
	if field == "" {
		return Order{}, fmt.Errorf("%w: empty field", ErrInvalidSort)
	}
	switch strings.ToLower(strings.TrimSpace(dir)) {
	case "", "asc":
		return Order{Field: field}, nil
	case "desc":
		return Order{Field: field, Desc: true}, nil
	default:
		return Order{}, fmt.Errorf("%w: direction %q", ErrInvalidSort, dir)
	}
}

// PageRequest selects a page of results. A Size of zero or less means unpaged.
type PageRequest struct {
	Page int
	Size int
	Sort []Order
}

// Unpaged returns a request for every row, ordered by id.
func Unpaged() PageRequest {
	return PageRequest{}
}

// IsUnpaged reports whether the request asks for all rows.
func (p PageRequest) IsUnpaged() bool {
	return p.Size <= 0
}

// Offset is the number of rows skipped before the page. It saturates at
// math.MaxInt instead of overflowing.
func (p PageRequest) Offset() int {
	if p.IsUnpaged() || p.Page <= 0 {
		return 0
	}
	if p.Page > math.MaxInt/p.Size {
		return math.MaxInt
	}
	return p.Page * p.Size
}

// Next returns the request for the following page.
func (p PageRequest) Next() PageRequest {
	n := p
	n.Page++
	return n
}

// SortFields lists the sortable fields for each kind.
var SortFields = map[Kind][]string{
	KindMode: {"id", "name", "handle"},
	KindPost: {"id", "title", "content", "date"},
	KindTag:  {"id", "name"},
	KindUser: {"id", "login"},
}

// ValidateSort checks that every order names a sortable field of the kind.
func ValidateSort(kind Kind, orders []Order) error {
	allowed := SortFields[kind]
	for _, o := range orders {
		ok := false
		for _, f := range allowed {
			if f == o.Field {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("%w: %s cannot be sorted by %q", ErrInvalidSort, kind, o.Field)
		}
	}
	return nil
}

// Page is one page of results with the total across all pages.
type Page[T any] struct {
	Items []T
	Total int64
	Page  int
	Size  int
}

// NewPage builds a page for the given request.
func NewPage[T any](items []T, total int64, req PageRequest) *Page[T] {
	if items == nil {
		items = []T{}
	}
	return &Page[T]{Items: items, Total: total, Page: req.Page, Size: req.Size}
}

// TotalPages returns the number of pages, or 1 for unpaged results.
func (p *Page[T]) TotalPages() int {
	if p.Size <= 0 {
		return 1
	}
	return int((p.Total + int64(p.Size) - 1) / int64(p.Size))
}

// HasNext reports whether another page follows this one.
func (p *Page[T]) HasNext() bool {
	return p.Size > 0 && p.Page < p.TotalPages()-1
}
