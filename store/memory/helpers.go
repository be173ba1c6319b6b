package memory

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/rbaliyan/blog/store"
)

// fieldFunc returns the sortable value of a field for an entity.
type fieldFunc[T any] func(e T, field string) any

func modeField(m *store.Mode, field string) any {
	switch field {
	case "name":
		return m.Name
	case "handle":
		return m.Handle
	default:
		return m.ID
	}
}

func postField(p *store.Post, field string) any {
	switch field {
	case "title":
		return p.Title
	case "content":
		return p.Content
	case "date":
		return p.Date
	default:
		return p.ID
	}
}

func tagField(t *store.Tag, field string) any {
	switch field {
	case "name":
		return t.Name
	default:
		return t.ID
	}
}

func userField(u *store.User, field string) any {
	switch field {
	case "login":
		return u.Login
	default:
		return u.ID
	}
}

// compareValues compares two values of the same type.
// Returns -1 if a < b, 0 if a == b, 1 if a > b.
func compareValues(a, b any) int {
	switch av := a.(type) {
	case int64:
		if bv, ok := b.(int64); ok {
			return cmp.Compare(av, bv)
		}
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	}
	return 0
}

// paginate sorts items by the requested orders (id ascending as the final
// tie-breaker) and slices out the requested page.
func paginate[T store.Entity](kind store.Kind, items []T, req store.PageRequest, field fieldFunc[T]) (*store.Page[T], error) {
	if err := store.ValidateSort(kind, req.Sort); err != nil {
		return nil, err
	}

	slices.SortStableFunc(items, func(a, b T) int {
		for _, o := range req.Sort {
			c := compareValues(field(a, o.Field), field(b, o.Field))
			if o.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return cmp.Compare(a.GetID(), b.GetID())
	})

	total := int64(len(items))
	if req.IsUnpaged() {
		return store.NewPage(items, total, req), nil
	}

	start := min(req.Offset(), len(items))
	end := start + min(req.Size, len(items)-start)
	return store.NewPage(items[start:end], total, req), nil
}

func sortIDs(ids []int64) {
	slices.Sort(ids)
}
