package search

import (
	"errors"
	"slices"
	"testing"

	"github.com/rbaliyan/blog/store"
)

func TestParseQuery(t *testing.T) {
	tests := []struct {
		name  string
		kind  store.Kind
		input string
		want  []Clause
	}{
		{"empty", store.KindTag, "", nil},
		{"blank", store.KindTag, "   ", nil},
		{"wildcard", store.KindTag, "*", []Clause{{Value: "*"}}},
		{"bare terms", store.KindPost, "hello world", []Clause{{Value: "hello"}, {Value: "world"}}},
		{"id clause", store.KindMode, "id:42", []Clause{{Field: "id", Value: "42"}}},
		{"field case folded", store.KindMode, "Name:foo", []Clause{{Field: "name", Value: "foo"}}},
		{"field phrase", store.KindPost, `title:"two words"`, []Clause{{Field: "title", Value: "two words", Phrase: true}}},
		{"bare phrase", store.KindPost, `"two words" more`, []Clause{{Value: "two words", Phrase: true}, {Value: "more"}}},
		{"or keyword", store.KindTag, "a OR b", []Clause{{Value: "a"}, {Value: "b"}}},
		{"field wildcard", store.KindTag, "name:*", []Clause{{Field: "name", Value: "*"}}},
		{"date value", store.KindPost, "date:2019-01-01", []Clause{{Field: "date", Value: "2019-01-01"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := ParseQuery(tt.kind, tt.input)
			if err != nil {
				t.Fatalf("ParseQuery(%q) failed: %v", tt.input, err)
			}
			if !slices.Equal(q.Clauses, tt.want) {
				t.Errorf("ParseQuery(%q) = %+v, want %+v", tt.input, q.Clauses, tt.want)
			}
			if q.Raw != tt.input {
				t.Errorf("Raw = %q, want %q", q.Raw, tt.input)
			}
		})
	}
}

func TestParseQueryErrors(t *testing.T) {
	tests := []struct {
		name  string
		kind  store.Kind
		input string
	}{
		{"unterminated quote", store.KindPost, `title:"abc`},
		{"empty field", store.KindPost, ":abc"},
		{"missing value", store.KindPost, "title: abc"},
		{"trailing colon", store.KindPost, "title:"},
		{"unknown field", store.KindTag, "title:abc"},
		{"double colon", store.KindTag, "name:a:b"},
		{"reserved character", store.KindTag, "(abc"},
		{"and operator", store.KindTag, "a AND b"},
		{"not operator", store.KindTag, "NOT a"},
		{"prefix operator", store.KindTag, "-abc"},
		{"empty phrase", store.KindTag, `""`},
		{"punctuation only", store.KindTag, "..."},
		{"quote inside word", store.KindTag, `ab"c"`},
		{"text after phrase", store.KindTag, `"ab"c`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseQuery(tt.kind, tt.input)
			if err == nil {
				t.Fatalf("ParseQuery(%q) succeeded, want error", tt.input)
			}
			if !errors.Is(err, ErrQuerySyntax) {
				t.Errorf("expected ErrQuerySyntax, got %v", err)
			}
			var qe *QueryError
			if !errors.As(err, &qe) {
				t.Fatalf("expected *QueryError, got %T", err)
			}
			if qe.Query != tt.input {
				t.Errorf("QueryError.Query = %q, want %q", qe.Query, tt.input)
			}
		})
	}

	t.Run("too long", func(t *testing.T) {
		long := make([]byte, MaxQueryLength+1)
		for i := range long {
			long[i] = 'a'
		}
		if _, err := ParseQuery(store.KindTag, string(long)); !IsQuerySyntax(err) {
			t.Errorf("expected syntax error, got %v", err)
		}
	})
}

func TestQueryMatchAll(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"", true},
		{"*", true},
		{"abc *", true},
		{"abc", false},
		{"name:*", false},
	}
	for _, tt := range tests {
		q, err := ParseQuery(store.KindTag, tt.input)
		if err != nil {
			t.Fatalf("ParseQuery(%q) failed: %v", tt.input, err)
		}
		if got := q.MatchAll(); got != tt.want {
			t.Errorf("MatchAll(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("Hello, World-42 ÉTÉ")
	want := []string{"hello", "world", "42", "été"}
	if !slices.Equal(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
	if got := Tokenize("--"); len(got) != 0 {
		t.Errorf("Tokenize(--) = %v, want empty", got)
	}
}
