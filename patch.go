package blog

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/rbaliyan/blog/store"
)

// Field is one member of a partial update. It distinguishes a key that was
// absent from the request, a key set to null, and a key set to a value.
type Field[T any] struct {
	Set   bool // the key was present
	Null  bool // the key was present and null
	Value T
}

// Value returns a field set to v.
func Value[T any](v T) Field[T] {
	return Field[T]{Set: true, Value: v}
}

// Null returns a field explicitly set to null.
func Null[T any]() Field[T] {
	return Field[T]{Set: true, Null: true}
}

// UnmarshalJSON is only called for keys present in the document.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		f.Null = true
		var zero T
		f.Value = zero
		return nil
	}
	f.Null = false
	return json.Unmarshal(data, &f.Value)
}

// IsZero lets omitzero drop absent fields when a patch is marshaled.
func (f Field[T]) IsZero() bool {
	return !f.Set
}

// MarshalJSON encodes null or the value.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if f.Null {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// required folds a present field onto a required value.
func required[T any](v *validator, name string, f Field[T], dst *T) {
	if !f.Set {
		return
	}
	if f.Null {
		v.add(name, "must not be null")
		return
	}
	*dst = f.Value
}

// optional folds a present field onto an optional value. Null clears it.
func optional[T any](f Field[T], dst *T) {
	if !f.Set {
		return
	}
	if f.Null {
		var zero T
		*dst = zero
		return
	}
	*dst = f.Value
}

// ModePatch is a partial update of a mode.
type ModePatch struct {
	ID     Field[int64]       `json:"id,omitzero"`
	Name   Field[string]      `json:"name,omitzero"`
	Handle Field[string]      `json:"handle,omitzero"`
	User   Field[*store.User] `json:"user,omitzero"`
}

// Apply folds the present fields onto m.
func (p ModePatch) Apply(m *store.Mode) error {
	v := &validator{kind: store.KindMode}
	required(v, "name", p.Name, &m.Name)
	required(v, "handle", p.Handle, &m.Handle)
	optional(p.User, &m.User)
	return v.err()
}

// PostPatch is a partial update of a post.
type PostPatch struct {
	ID      Field[int64]        `json:"id,omitzero"`
	Title   Field[string]       `json:"title,omitzero"`
	Content Field[string]       `json:"content,omitzero"`
	Date    Field[time.Time]    `json:"date,omitzero"`
	Mode    Field[*store.Mode]  `json:"mode,omitzero"`
	Tags    Field[[]*store.Tag] `json:"tags,omitzero"`
}

// Apply folds the present fields onto p. A null tag set clears it.
func (pp PostPatch) Apply(p *store.Post) error {
	v := &validator{kind: store.KindPost}
	required(v, "title", pp.Title, &p.Title)
	required(v, "content", pp.Content, &p.Content)
	required(v, "date", pp.Date, &p.Date)
	optional(pp.Mode, &p.Mode)
	optional(pp.Tags, &p.Tags)
	if p.Tags == nil {
		p.Tags = []*store.Tag{}
	}
	return v.err()
}

// TagPatch is a partial update of a tag.
type TagPatch struct {
	ID   Field[int64]  `json:"id,omitzero"`
	Name Field[string] `json:"name,omitzero"`
}

// Apply folds the present fields onto t.
func (p TagPatch) Apply(t *store.Tag) error {
	v := &validator{kind: store.KindTag}
	required(v, "name", p.Name, &t.Name)
	return v.err()
}

// patchID resolves the identifier carried by a patch.
func patchID(f Field[int64]) int64 {
	if !f.Set || f.Null {
		return 0
	}
	return f.Value
}
