// Package indextest provides a conformance suite for search.Index
// implementations.
package indextest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"testing"

	"github.com/rbaliyan/blog/search"
	"github.com/rbaliyan/blog/store"
)

// Factory returns a fresh, unconnected and empty index for each subtest.
type Factory func(t *testing.T) search.Index

// Run executes the conformance suite against indexes produced by newIndex.
func Run(t *testing.T, newIndex Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, x search.Index)
	}{
		{"UpsertReplaces", testUpsert},
		{"DeleteIsIdempotent", testDelete},
		{"IDClause", testIDClause},
		{"BareTerms", testBareTerms},
		{"FieldClause", testFieldClause},
		{"MatchAllPages", testMatchAllPages},
		{"KindsAreSeparate", testKindsSeparate},
		{"Clear", testClear},
		{"NotConnected", testNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := newIndex(t)
			if err := x.Connect(context.Background()); err != nil {
				t.Fatalf("connect: %v", err)
			}
			t.Cleanup(func() { x.Close(context.Background()) })
			tt.fn(t, x)
		})
	}
}

func tagDoc(id int64, name string) search.Document {
	src, _ := json.Marshal(map[string]any{"id": id, "name": name})
	return search.Document{
		Kind:   store.KindTag,
		ID:     id,
		Fields: map[string]string{"id": strconv.FormatInt(id, 10), "name": name},
		Source: src,
	}
}

func mustIndex(t *testing.T, x search.Index, docs ...search.Document) {
	t.Helper()
	for _, d := range docs {
		if err := x.Index(context.Background(), d); err != nil {
			t.Fatalf("index %s %d: %v", d.Kind, d.ID, err)
		}
	}
}

func mustSearch(t *testing.T, x search.Index, kind store.Kind, raw string, req store.PageRequest) *search.Result {
	t.Helper()
	q, err := search.ParseQuery(kind, raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	res, err := x.Search(context.Background(), kind, q, req)
	if err != nil {
		t.Fatalf("search %q: %v", raw, err)
	}
	return res
}

func ids(res *search.Result) []int64 {
	out := make([]int64, 0, len(res.Hits))
	for _, h := range res.Hits {
		out = append(out, h.ID)
	}
	return out
}

func equalIDs(a, b []int64) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func testUpsert(t *testing.T, x search.Index) {
	mustIndex(t, x, tagDoc(1, "AAAAAAAAAA"), tagDoc(1, "BBBBBBBBBB"))

	n, err := x.Count(context.Background(), store.KindTag)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
	res := mustSearch(t, x, store.KindTag, "id:1", store.Unpaged())
	if len(res.Hits) != 1 {
		t.Fatalf("hits = %d, want 1", len(res.Hits))
	}
	var got struct{ Name string }
	if err := json.Unmarshal(res.Hits[0].Source, &got); err != nil {
		t.Fatalf("decode source: %v", err)
	}
	if got.Name != "BBBBBBBBBB" {
		t.Errorf("source name = %q, want BBBBBBBBBB", got.Name)
	}
}

func testDelete(t *testing.T, x search.Index) {
	ctx := context.Background()
	mustIndex(t, x, tagDoc(1, "one"))
	if err := x.Delete(ctx, store.KindTag, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := x.Delete(ctx, store.KindTag, 1); err != nil {
		t.Errorf("second delete: %v", err)
	}
	if res := mustSearch(t, x, store.KindTag, "id:1", store.Unpaged()); len(res.Hits) != 0 {
		t.Errorf("hits after delete = %v", ids(res))
	}
}

func testIDClause(t *testing.T, x search.Index) {
	mustIndex(t, x, tagDoc(1, "one"), tagDoc(11, "eleven"), tagDoc(111, "many"))

	res := mustSearch(t, x, store.KindTag, "id:11", store.Unpaged())
	if !equalIDs(ids(res), []int64{11}) {
		t.Errorf("id:11 = %v, want [11]", ids(res))
	}
	if res.Total != 1 {
		t.Errorf("total = %d, want 1", res.Total)
	}
}

func testBareTerms(t *testing.T, x search.Index) {
	mustIndex(t, x,
		tagDoc(1, "golang tips"),
		tagDoc(2, "rust tips"),
		tagDoc(3, "golang golang"),
		tagDoc(4, "cooking"),
	)

	res := mustSearch(t, x, store.KindTag, "golang", store.Unpaged())
	if len(res.Hits) != 2 {
		t.Fatalf("golang hits = %v, want 2", ids(res))
	}
	for _, h := range res.Hits {
		if h.ID != 1 && h.ID != 3 {
			t.Errorf("unexpected hit %d", h.ID)
		}
	}

	res = mustSearch(t, x, store.KindTag, "golang OR rust", store.Unpaged())
	if res.Total != 3 {
		t.Errorf("golang OR rust total = %d, want 3", res.Total)
	}

	res = mustSearch(t, x, store.KindTag, "GOLANG", store.Unpaged())
	if res.Total != 2 {
		t.Errorf("case-insensitive total = %d, want 2", res.Total)
	}

	if res := mustSearch(t, x, store.KindTag, "python", store.Unpaged()); res.Total != 0 {
		t.Errorf("python total = %d, want 0", res.Total)
	}
}

func testFieldClause(t *testing.T, x search.Index) {
	ctx := context.Background()
	post := func(id int64, title, content string) search.Document {
		return search.Document{
			Kind: store.KindPost,
			ID:   id,
			Fields: map[string]string{
				"id":      strconv.FormatInt(id, 10),
				"title":   title,
				"content": content,
			},
			Source: json.RawMessage(`{}`),
		}
	}
	if err := x.Index(ctx, post(1, "hello world", "nothing")); err != nil {
		t.Fatal(err)
	}
	if err := x.Index(ctx, post(2, "other", "hello world")); err != nil {
		t.Fatal(err)
	}
	if err := x.Index(ctx, post(3, "world hello", "x")); err != nil {
		t.Fatal(err)
	}

	res := mustSearch(t, x, store.KindPost, "title:hello", store.Unpaged())
	if !equalIDs(ids(res), []int64{1, 3}) {
		t.Errorf("title:hello = %v, want [1 3]", ids(res))
	}

	res = mustSearch(t, x, store.KindPost, `title:"hello world"`, store.Unpaged())
	if !equalIDs(ids(res), []int64{1}) {
		t.Errorf(`title:"hello world" = %v, want [1]`, ids(res))
	}

	res = mustSearch(t, x, store.KindPost, `content:"hello world"`, store.Unpaged())
	if !equalIDs(ids(res), []int64{2}) {
		t.Errorf(`content:"hello world" = %v, want [2]`, ids(res))
	}
}

func testMatchAllPages(t *testing.T, x search.Index) {
	for i := int64(1); i <= 5; i++ {
		mustIndex(t, x, tagDoc(i, fmt.Sprintf("tag %d", i)))
	}

	req := store.PageRequest{Page: 0, Size: 2}
	var seen []int64
	for {
		res := mustSearch(t, x, store.KindTag, "*", req)
		if res.Total != 5 {
			t.Fatalf("total = %d, want 5", res.Total)
		}
		if len(res.Hits) == 0 {
			break
		}
		seen = append(seen, ids(res)...)
		req = req.Next()
	}
	if !equalIDs(seen, []int64{1, 2, 3, 4, 5}) {
		t.Errorf("paged ids = %v, want [1 2 3 4 5]", seen)
	}

	far := mustSearch(t, x, store.KindTag, "*", store.PageRequest{Page: math.MaxInt / 50, Size: 100})
	if len(far.Hits) != 0 || far.Total != 5 {
		t.Errorf("far page = %d hits of %d, want 0 of 5", len(far.Hits), far.Total)
	}

	if res := mustSearch(t, x, store.KindTag, "", store.Unpaged()); res.Total != 5 {
		t.Errorf("empty query total = %d, want 5", res.Total)
	}
}

func testKindsSeparate(t *testing.T, x search.Index) {
	mustIndex(t, x, tagDoc(1, "shared"))
	mustIndex(t, x, search.Document{
		Kind:   store.KindMode,
		ID:     1,
		Fields: map[string]string{"id": "1", "name": "shared"},
		Source: json.RawMessage(`{}`),
	})
	if err := x.Delete(context.Background(), store.KindMode, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if res := mustSearch(t, x, store.KindTag, "shared", store.Unpaged()); res.Total != 1 {
		t.Errorf("tag total = %d, want 1", res.Total)
	}
	if res := mustSearch(t, x, store.KindMode, "shared", store.Unpaged()); res.Total != 0 {
		t.Errorf("mode total = %d, want 0", res.Total)
	}
}

func testClear(t *testing.T, x search.Index) {
	ctx := context.Background()
	mustIndex(t, x, tagDoc(1, "a"), tagDoc(2, "b"))
	if err := x.Clear(ctx, store.KindTag); err != nil {
		t.Fatalf("clear: %v", err)
	}
	n, err := x.Count(ctx, store.KindTag)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("count after clear = %d", n)
	}
	mustIndex(t, x, tagDoc(3, "c"))
	if res := mustSearch(t, x, store.KindTag, "*", store.Unpaged()); !equalIDs(ids(res), []int64{3}) {
		t.Errorf("after clear = %v, want [3]", ids(res))
	}
}

func testNotConnected(t *testing.T, x search.Index) {
	ctx := context.Background()
	if err := x.Connect(ctx); !errors.Is(err, search.ErrAlreadyConnected) {
		t.Errorf("second connect: expected ErrAlreadyConnected, got %v", err)
	}
	if err := x.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := x.Index(ctx, tagDoc(1, "a")); !errors.Is(err, search.ErrNotConnected) {
		t.Errorf("index after close: expected ErrNotConnected, got %v", err)
	}
	if _, err := x.Search(ctx, store.KindTag, search.Query{}, store.Unpaged()); !errors.Is(err, search.ErrNotConnected) {
		t.Errorf("search after close: expected ErrNotConnected, got %v", err)
	}
}
