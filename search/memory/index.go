// Package memory provides an in-memory implementation of search.Index.
// It is intended for tests and single-process deployments.
package memory

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rbaliyan/blog/search"
	"github.com/rbaliyan/blog/store"
)

// Index implements search.Index in memory.
type Index struct {
	mu        sync.RWMutex
	docs      map[store.Kind]map[int64]*entry
	connected int32
}

// entry is a document with its tokenized fields.
type entry struct {
	doc    search.Document
	tokens map[string][]string
}

// Compile-time check.
var _ search.Index = (*Index)(nil)

// New creates an empty in-memory index.
func New() *Index {
	return &Index{docs: make(map[store.Kind]map[int64]*entry)}
}

func (x *Index) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&x.connected, 0, 1) {
		return search.ErrAlreadyConnected
	}
	return nil
}

func (x *Index) Close(ctx context.Context) error {
	atomic.StoreInt32(&x.connected, 0)
	return nil
}

func (x *Index) checkConnected() error {
	if atomic.LoadInt32(&x.connected) == 0 {
		return search.ErrNotConnected
	}
	return nil
}

func (x *Index) Index(ctx context.Context, doc search.Document) error {
	if err := x.checkConnected(); err != nil {
		return err
	}
	e := &entry{
		doc:    cloneDoc(doc),
		tokens: make(map[string][]string, len(doc.Fields)),
	}
	for field, value := range doc.Fields {
		e.tokens[field] = search.Tokenize(value)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	byID, ok := x.docs[doc.Kind]
	if !ok {
		byID = make(map[int64]*entry)
		x.docs[doc.Kind] = byID
	}
	byID[doc.ID] = e
	return nil
}

func (x *Index) Delete(ctx context.Context, kind store.Kind, id int64) error {
	if err := x.checkConnected(); err != nil {
		return err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.docs[kind], id)
	return nil
}

func (x *Index) Count(ctx context.Context, kind store.Kind) (int64, error) {
	if err := x.checkConnected(); err != nil {
		return 0, err
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	return int64(len(x.docs[kind])), nil
}

func (x *Index) Clear(ctx context.Context, kind store.Kind) error {
	if err := x.checkConnected(); err != nil {
		return err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.docs, kind)
	return nil
}

// Get returns the stored document.
func (x *Index) Get(kind store.Kind, id int64) (search.Document, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	e, ok := x.docs[kind][id]
	if !ok {
		return search.Document{}, false
	}
	return cloneDoc(e.doc), true
}

func (x *Index) Search(ctx context.Context, kind store.Kind, q search.Query, req store.PageRequest) (*search.Result, error) {
	if err := x.checkConnected(); err != nil {
		return nil, err
	}

	x.mu.RLock()
	hits := make([]search.Hit, 0)
	matchAll := q.MatchAll()
	for id, e := range x.docs[kind] {
		var score float64
		if matchAll {
			score = 1
		} else {
			score = e.score(q)
		}
		if score > 0 {
			hits = append(hits, search.Hit{ID: id, Score: score, Source: slices.Clone(e.doc.Source)})
		}
	}
	x.mu.RUnlock()

	slices.SortFunc(hits, func(a, b search.Hit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	total := int64(len(hits))
	if !req.IsUnpaged() {
		start := min(req.Offset(), len(hits))
		end := start + min(req.Size, len(hits)-start)
		hits = hits[start:end]
	}
	return &search.Result{Hits: hits, Total: total}, nil
}

// score sums clause matches. Zero means no match.
func (e *entry) score(q search.Query) float64 {
	var score float64
	for _, c := range q.Clauses {
		if c.Field == "" {
			for _, tokens := range e.tokens {
				score += float64(occurrences(tokens, c.Terms()))
			}
			continue
		}
		value, ok := e.doc.Fields[c.Field]
		switch {
		case !ok:
		case c.IsWildcard():
			if value != "" {
				score++
			}
		case c.Field == "id":
			if value == c.Value {
				score++
			}
		default:
			score += float64(occurrences(e.tokens[c.Field], c.Terms()))
		}
	}
	return score
}

// occurrences counts the contiguous appearances of seq in tokens.
func occurrences(tokens, seq []string) int {
	if len(seq) == 0 || len(seq) > len(tokens) {
		return 0
	}
	n := 0
	for i := 0; i+len(seq) <= len(tokens); i++ {
		if slices.Equal(tokens[i:i+len(seq)], seq) {
			n++
		}
	}
	return n
}

func cloneDoc(d search.Document) search.Document {
	fields := make(map[string]string, len(d.Fields))
	for k, v := range d.Fields {
		fields[k] = v
	}
	d.Fields = fields
	d.Source = slices.Clone(d.Source)
	return d
}
