package search

import (
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/rbaliyan/blog/store"
)

// MaxQueryLength bounds the query text accepted by ParseQuery.
const MaxQueryLength = 1024

// reserved are query-string characters this parser does not support.
const reserved = `(){}[]^~\/!`

// Clause is one condition of a query. Clauses are OR'ed.
type Clause struct {
	// Field is empty for a bare term that may match any field.
	Field string
	// Value is the raw value, without quotes.
	Value string
	// Phrase is set when the value was quoted.
	Phrase bool
}

// Terms returns the normalized tokens of the clause value.
func (c Clause) Terms() []string {
	return Tokenize(c.Value)
}

// IsWildcard reports whether the clause matches any value.
func (c Clause) IsWildcard() bool {
	return c.Value == "*" && !c.Phrase
}

// Query is a parsed search query.
type Query struct {
	Raw     string
	Clauses []Clause
}

// MatchAll reports whether the query matches every document of the kind.
func (q Query) MatchAll() bool {
	if len(q.Clauses) == 0 {
		return true
	}
	for _, c := range q.Clauses {
		if c.Field == "" && c.IsWildcard() {
			return true
		}
	}
	return false
}

// HasFieldClauses reports whether any clause is restricted to a field.
func (q Query) HasFieldClauses() bool {
	for _, c := range q.Clauses {
		if c.Field != "" {
			return true
		}
	}
	return false
}

func (q Query) String() string {
	return q.Raw
}

// QueryError describes why query text could not be parsed.
type QueryError struct {
	Query  string
	Pos    int
	Reason string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("search: invalid query at %d: %s", e.Pos, e.Reason)
}

func (e *QueryError) Unwrap() error {
	return ErrQuerySyntax
}

// ParseQuery parses query text for the kind. The syntax is a subset of the
// Lucene query string:
//
//	hello world        bare terms, any field
//	title:hello        field clause
//	name:"two words"   quoted phrase, optionally field scoped
//	*                  every document
//	a OR b             OR is accepted; clauses are OR'ed anyway
//
// Malformed text returns a *QueryError that wraps ErrQuerySyntax.
func ParseQuery(kind store.Kind, raw string) (Query, error) {
	q := Query{Raw: raw}
	if len(raw) > MaxQueryLength {
		return q, &QueryError{Query: raw, Pos: MaxQueryLength, Reason: "query too long"}
	}
	fields := Fields[kind]

	p := &parser{src: []rune(raw)}
	for {
		p.skipSpace()
		if p.eof() {
			break
		}
		c, err := p.clause()
		if err != nil {
			err.Query = raw
			return q, err
		}
		if c == nil {
			continue
		}
		if c.Field != "" && !slices.Contains(fields, c.Field) {
			return q, &QueryError{Query: raw, Pos: p.pos, Reason: fmt.Sprintf("unknown field %q", c.Field)}
		}
		q.Clauses = append(q.Clauses, *c)
	}
	return q, nil
}

type parser struct {
	src []rune
	pos int
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() rune { return p.src[p.pos] }

func (p *parser) skipSpace() {
	for !p.eof() && unicode.IsSpace(p.peek()) {
		p.pos++
	}
}

func (p *parser) fail(reason string) *QueryError {
	return &QueryError{Pos: p.pos, Reason: reason}
}

// clause reads one clause. It returns nil for an operator keyword.
func (p *parser) clause() (*Clause, *QueryError) {
	if p.peek() == '"' {
		v, err := p.phrase()
		if err != nil {
			return nil, err
		}
		return &Clause{Value: v, Phrase: true}, nil
	}

	start := p.pos
	word, err := p.word()
	if err != nil {
		return nil, err
	}

	if !p.eof() && p.peek() == ':' {
		if word == "" {
			return nil, &QueryError{Pos: start, Reason: "empty field name"}
		}
		p.pos++
		if p.eof() || unicode.IsSpace(p.peek()) {
			return nil, p.fail("missing value for field " + word)
		}
		field := strings.ToLower(word)
		if p.peek() == '"' {
			v, err := p.phrase()
			if err != nil {
				return nil, err
			}
			return &Clause{Field: field, Value: v, Phrase: true}, nil
		}
		v, err := p.word()
		if err != nil {
			return nil, err
		}
		if !p.eof() && p.peek() == ':' {
			return nil, p.fail("unexpected ':'")
		}
		return p.value(field, v)
	}

	switch word {
	case "OR":
		return nil, nil
	case "AND", "NOT":
		return nil, &QueryError{Pos: start, Reason: "unsupported operator " + word}
	}
	return p.value("", word)
}

// value validates a term value.
func (p *parser) value(field, v string) (*Clause, *QueryError) {
	if v == "*" {
		return &Clause{Field: field, Value: v}, nil
	}
	if strings.HasPrefix(v, "+") || strings.HasPrefix(v, "-") {
		return nil, p.fail("unsupported operator " + v[:1])
	}
	if len(Tokenize(v)) == 0 {
		return nil, p.fail(fmt.Sprintf("term %q has no searchable characters", v))
	}
	return &Clause{Field: field, Value: v}, nil
}

// word reads up to whitespace, ':' or '"'.
func (p *parser) word() (string, *QueryError) {
	start := p.pos
	for !p.eof() {
		r := p.peek()
		if unicode.IsSpace(r) || r == ':' {
			break
		}
		if r == '"' {
			return "", p.fail("unexpected quote")
		}
		if strings.ContainsRune(reserved, r) {
			return "", p.fail(fmt.Sprintf("unsupported character %q", r))
		}
		p.pos++
	}
	return string(p.src[start:p.pos]), nil
}

// phrase reads a quoted phrase, consuming both quotes.
func (p *parser) phrase() (string, *QueryError) {
	start := p.pos
	p.pos++ // opening quote
	for !p.eof() && p.peek() != '"' {
		p.pos++
	}
	if p.eof() {
		return "", &QueryError{Pos: start, Reason: "unterminated quote"}
	}
	v := string(p.src[start+1 : p.pos])
	p.pos++ // closing quote
	if len(Tokenize(v)) == 0 {
		return "", &QueryError{Pos: start, Reason: "empty phrase"}
	}
	if !p.eof() && !unicode.IsSpace(p.peek()) {
		return "", p.fail("expected space after phrase")
	}
	return v, nil
}

// Tokenize lowercases s and splits it into letter/digit runs.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
