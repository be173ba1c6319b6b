package store

import (
	"cmp"
	"fmt"
	"slices"
	"time"
)

// Kind names an entity type. It doubles as the REST entity name and the
// search index name.
type Kind string

// Entity kinds.
const (
	KindUser Kind = "user"
	KindMode Kind = "mode"
	KindPost Kind = "post"
	KindTag  Kind = "tag"
)

// IndexedKinds lists the kinds that are mirrored into the search index.
var IndexedKinds = []Kind{KindMode, KindPost, KindTag}

// ParseKind converts a string into an indexed Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if slices.Contains(IndexedKinds, k) {
		return k, nil
	}
	return "", fmt.Errorf("store: unknown kind %q", s)
}

// Entity is implemented by every persisted type.
// An ID of zero means the entity has not been persisted yet.
type Entity interface {
	GetID() int64
	EntityKind() Kind
}

// User is the owner referenced by a Mode. Users are seeded directly through
// the store; they are not managed by the service.
type User struct {
	ID    int64  `json:"id"`
	Login string `json:"login,omitempty"`
}

func (u *User) GetID() int64 {
	if u == nil {
		return 0
	}
	return u.ID
}

func (u *User) EntityKind() Kind { return KindUser }

// Equal reports whether both users are persisted and share an identifier.
func (u *User) Equal(o *User) bool {
	return sameID(u, o)
}

func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// Mode is a publishing mode owned by a user.
type Mode struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Handle string `json:"handle"`
	User   *User  `json:"user,omitempty"`
}

func (m *Mode) GetID() int64 {
	if m == nil {
		return 0
	}
	return m.ID
}

func (m *Mode) EntityKind() Kind { return KindMode }

// Equal reports whether both modes are persisted and share an identifier.
// Two unsaved modes are never equal.
func (m *Mode) Equal(o *Mode) bool {
	return sameID(m, o)
}

func (m *Mode) Clone() *Mode {
	if m == nil {
		return nil
	}
	c := *m
	c.User = m.User.Clone()
	return &c
}

func (m *Mode) String() string {
	return fmt.Sprintf("Mode{id=%d, name=%q, handle=%q}", m.ID, m.Name, m.Handle)
}

// Tag labels posts.
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (t *Tag) GetID() int64 {
	if t == nil {
		return 0
	}
	return t.ID
}

func (t *Tag) EntityKind() Kind { return KindTag }

// Equal reports whether both tags are persisted and share an identifier.
func (t *Tag) Equal(o *Tag) bool {
	return sameID(t, o)
}

func (t *Tag) Clone() *Tag {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func (t *Tag) String() string {
	return fmt.Sprintf("Tag{id=%d, name=%q}", t.ID, t.Name)
}

// Post is a dated article published under an optional mode and labelled with
// a set of tags.
type Post struct {
	ID      int64     `json:"id"`
	Title   string    `json:"title"`
	Content string    `json:"content"`
	Date    time.Time `json:"date"`
	Mode    *Mode     `json:"mode,omitempty"`
	Tags    []*Tag    `json:"tags"`
}

func (p *Post) GetID() int64 {
	if p == nil {
		return 0
	}
	return p.ID
}

func (p *Post) EntityKind() Kind { return KindPost }

// Equal reports whether both posts are persisted and share an identifier.
func (p *Post) Equal(o *Post) bool {
	return sameID(p, o)
}

func (p *Post) Clone() *Post {
	if p == nil {
		return nil
	}
	c := *p
	c.Mode = p.Mode.Clone()
	c.Tags = make([]*Tag, 0, len(p.Tags))
	for _, t := range p.Tags {
		c.Tags = append(c.Tags, t.Clone())
	}
	return &c
}

// AddTag adds t to the tag set. Adding a tag that is already present is a no-op.
func (p *Post) AddTag(t *Tag) *Post {
	if t == nil {
		return p
	}
	for _, existing := range p.Tags {
		if existing.Equal(t) {
			return p
		}
	}
	p.Tags = append(p.Tags, t)
	return p
}

// RemoveTag removes t from the tag set.
func (p *Post) RemoveTag(t *Tag) *Post {
	p.Tags = slices.DeleteFunc(p.Tags, func(existing *Tag) bool {
		return existing.Equal(t)
	})
	return p
}

// TagIDs returns the identifiers of the post's tags in set order.
func (p *Post) TagIDs() []int64 {
	ids := make([]int64, 0, len(p.Tags))
	for _, t := range p.Tags {
		ids = append(ids, t.GetID())
	}
	return ids
}

func (p *Post) String() string {
	return fmt.Sprintf("Post{id=%d, title=%q, date=%s}", p.ID, p.Title, p.Date.Format(time.RFC3339))
}

// NormalizeTags returns the tag set without nil entries or duplicate
// identifiers, ordered by identifier.
func NormalizeTags(tags []*Tag) []*Tag {
	out := make([]*Tag, 0, len(tags))
	seen := make(map[int64]struct{}, len(tags))
	for _, t := range tags {
		if t == nil {
			continue
		}
		if _, ok := seen[t.ID]; ok {
			continue
		}
		seen[t.ID] = struct{}{}
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b *Tag) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func sameID[T Entity](a, b T) bool {
	id := a.GetID()
	return id != 0 && id == b.GetID()
}
