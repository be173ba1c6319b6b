// Package search defines the search index that mirrors the primary store.
// Implementations are in search/mongo and search/memory subpackages.
//
// The index holds one denormalized Document per entity, keyed by kind and
// identifier. Indexing is a full-document upsert, so applying the same
// document twice is harmless.
package search

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rbaliyan/blog/store"
)

// Sentinel errors for the search package.
var (
	// ErrQuerySyntax is returned for malformed query text.
	ErrQuerySyntax = errors.New("search: query syntax error")

	// ErrNotConnected is returned when operations are attempted before Connect().
	ErrNotConnected = errors.New("search: not connected")

	// ErrAlreadyConnected is returned when Connect() is called twice.
	ErrAlreadyConnected = errors.New("search: already connected")
)

// Fields lists the searchable fields of each kind. Field clauses in a query
// must name one of these.
var Fields = map[store.Kind][]string{
	store.KindMode: {"id", "name", "handle", "user"},
	store.KindPost: {"id", "title", "content", "date", "mode", "tags"},
	store.KindTag:  {"id", "name"},
}

// Document is the indexed form of an entity.
type Document struct {
	Kind store.Kind
	ID   int64
	// Fields are the searchable projections of the entity, by field name.
	Fields map[string]string
	// Source is the entity JSON returned with hits.
	Source json.RawMessage
}

// Hit is one search result.
type Hit struct {
	ID     int64
	Score  float64
	Source json.RawMessage
}

// Result is one page of hits, ordered by relevance.
type Result struct {
	Hits  []Hit
	Total int64
}

// Index is the search index contract.
type Index interface {
	Connect(ctx context.Context) error
	Close(ctx context.Context) error

	// Index upserts the document.
	Index(ctx context.Context, doc Document) error
	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, kind store.Kind, id int64) error
	// Search returns one page of hits for the query ordered by relevance,
	// ties broken by ascending id. Sort orders in req are ignored.
	Search(ctx context.Context, kind store.Kind, q Query, req store.PageRequest) (*Result, error)
	// Count returns the number of documents of the kind.
	Count(ctx context.Context, kind store.Kind) (int64, error)
	// Clear removes every document of the kind.
	Clear(ctx context.Context, kind store.Kind) error
}

// IsQuerySyntax reports whether err is a malformed query.
func IsQuerySyntax(err error) bool {
	return errors.Is(err, ErrQuerySyntax)
}
