package blog

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rbaliyan/blog/store"
)

// Limits holds the configurable field limits.
type Limits struct {
	MaxFieldLength int
	MaxContentSize int
}

// DefaultLimits returns the default field limits.
func DefaultLimits() Limits {
	return Limits{
		MaxFieldLength: DefaultMaxFieldLength,
		MaxContentSize: DefaultMaxContentSize,
	}
}

// validator accumulates field failures of one entity.
type validator struct {
	kind store.Kind
	errs ValidationErrors
}

func (v *validator) add(field, format string, args ...any) {
	v.errs = append(v.errs, &ValidationError{
		Entity:  string(v.kind),
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	})
}

// text checks a required text field against a minimum and maximum length in
// characters. A blank value counts as missing.
func (v *validator) text(field, value string, minLen, maxLen int) {
	if strings.TrimSpace(value) == "" {
		v.add(field, "is required")
		return
	}
	n := utf8.RuneCountInString(value)
	if minLen > 0 && n < minLen {
		v.add(field, "must be at least %d characters", minLen)
	}
	if maxLen > 0 && n > maxLen {
		v.add(field, "must be at most %d characters", maxLen)
	}
}

func (v *validator) ref(field string, id int64) {
	if id <= 0 {
		v.add(field, "reference must carry an id")
	}
}

func (v *validator) err() error {
	if len(v.errs) == 0 {
		return nil
	}
	return v.errs
}

// ValidateMode checks the required fields of a mode.
func ValidateMode(m *store.Mode, limits Limits) error {
	v := &validator{kind: store.KindMode}
	if m == nil {
		v.add("mode", "is required")
		return v.err()
	}
	v.text("name", m.Name, MinModeNameLength, limits.MaxFieldLength)
	v.text("handle", m.Handle, MinModeHandleLength, limits.MaxFieldLength)
	if m.User != nil {
		v.ref("user", m.User.ID)
	}
	return v.err()
}

// ValidatePost checks the required fields of a post.
func ValidatePost(p *store.Post, limits Limits) error {
	v := &validator{kind: store.KindPost}
	if p == nil {
		v.add("post", "is required")
		return v.err()
	}
	v.text("title", p.Title, 0, limits.MaxFieldLength)
	if strings.TrimSpace(p.Content) == "" {
		v.add("content", "is required")
	} else if len(p.Content) > limits.MaxContentSize {
		v.add("content", "must be at most %d bytes", limits.MaxContentSize)
	}
	if p.Date.IsZero() {
		v.add("date", "is required")
	}
	if p.Mode != nil {
		v.ref("mode", p.Mode.ID)
	}
	for _, t := range p.Tags {
		if t == nil {
			continue
		}
		v.ref("tags", t.ID)
	}
	return v.err()
}

// ValidateTag checks the required fields of a tag.
func ValidateTag(t *store.Tag, limits Limits) error {
	v := &validator{kind: store.KindTag}
	if t == nil {
		v.add("tag", "is required")
		return v.err()
	}
	v.text("name", t.Name, 0, limits.MaxFieldLength)
	return v.err()
}

func (o *options) limits() Limits {
	return Limits{MaxFieldLength: o.maxFieldLength, MaxContentSize: o.maxContentSize}
}
