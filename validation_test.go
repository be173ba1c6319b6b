package blog

import (
	"strings"
	"testing"
	"time"

	"github.com/rbaliyan/blog/store"
)

func TestValidateMode(t *testing.T) {
	limits := DefaultLimits()
	tests := []struct {
		name       string
		mode       *store.Mode
		wantFields []string
	}{
		{name: "valid", mode: &store.Mode{Name: "abc", Handle: "ab"}},
		{name: "nil", mode: nil, wantFields: []string{"mode"}},
		{name: "blank name", mode: &store.Mode{Name: "   ", Handle: "ab"}, wantFields: []string{"name"}},
		{name: "short name", mode: &store.Mode{Name: "ab", Handle: "ab"}, wantFields: []string{"name"}},
		{name: "short handle", mode: &store.Mode{Name: "abc", Handle: "a"}, wantFields: []string{"handle"}},
		{name: "both missing", mode: &store.Mode{}, wantFields: []string{"name", "handle"}},
		{
			name:       "name too long",
			mode:       &store.Mode{Name: strings.Repeat("a", DefaultMaxFieldLength+1), Handle: "ab"},
			wantFields: []string{"name"},
		},
		{
			name:       "multibyte counts characters",
			mode:       &store.Mode{Name: "日本語", Handle: "日本"},
			wantFields: nil,
		},
		{name: "user without id", mode: &store.Mode{Name: "abc", Handle: "ab", User: &store.User{}}, wantFields: []string{"user"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertFields(t, ValidateMode(tt.mode, limits), tt.wantFields)
		})
	}
}

func TestValidatePost(t *testing.T) {
	limits := Limits{MaxFieldLength: 10, MaxContentSize: 8}
	date := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name       string
		post       *store.Post
		wantFields []string
	}{
		{name: "valid", post: &store.Post{Title: "t", Content: "c", Date: date}},
		{name: "missing everything", post: &store.Post{}, wantFields: []string{"title", "content", "date"}},
		{name: "content too large", post: &store.Post{Title: "t", Content: "123456789", Date: date}, wantFields: []string{"content"}},
		{name: "mode without id", post: &store.Post{Title: "t", Content: "c", Date: date, Mode: &store.Mode{}}, wantFields: []string{"mode"}},
		{
			name:       "tag without id",
			post:       &store.Post{Title: "t", Content: "c", Date: date, Tags: []*store.Tag{{ID: 1}, {Name: "new"}}},
			wantFields: []string{"tags"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertFields(t, ValidatePost(tt.post, limits), tt.wantFields)
		})
	}
}

func TestValidateTag(t *testing.T) {
	assertFields(t, ValidateTag(&store.Tag{Name: "go"}, DefaultLimits()), nil)
	assertFields(t, ValidateTag(&store.Tag{}, DefaultLimits()), []string{"name"})
}

func assertFields(t *testing.T, err error, want []string) {
	t.Helper()
	got := FieldErrors(err)
	if len(want) == 0 {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		return
	}
	if len(got) != len(want) {
		t.Fatalf("expected fields %v, got %v", want, err)
	}
	for i, f := range want {
		if got[i].Field != f {
			t.Errorf("field %d: expected %q, got %q", i, f, got[i].Field)
		}
	}
}
