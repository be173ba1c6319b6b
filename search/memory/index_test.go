package memory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rbaliyan/blog/search"
	"github.com/rbaliyan/blog/search/indextest"
	"github.com/rbaliyan/blog/store"
)

func TestConformance(t *testing.T) {
	indextest.Run(t, func(t *testing.T) search.Index { return New() })
}

func TestScoreOrdering(t *testing.T) {
	ctx := context.Background()
	x := New()
	if err := x.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	docs := []search.Document{
		{Kind: store.KindTag, ID: 1, Fields: map[string]string{"name": "go"}},
		{Kind: store.KindTag, ID: 2, Fields: map[string]string{"name": "go go go"}},
		{Kind: store.KindTag, ID: 3, Fields: map[string]string{"name": "go go"}},
	}
	for _, d := range docs {
		if err := x.Index(ctx, d); err != nil {
			t.Fatal(err)
		}
	}
	q, err := search.ParseQuery(store.KindTag, "go")
	if err != nil {
		t.Fatal(err)
	}
	res, err := x.Search(ctx, store.KindTag, q, store.Unpaged())
	if err != nil {
		t.Fatal(err)
	}
	want := []int64{2, 3, 1}
	for i, h := range res.Hits {
		if h.ID != want[i] {
			t.Errorf("hit %d = %d, want %d", i, h.ID, want[i])
		}
	}
}

func TestStoredDocumentIsCopied(t *testing.T) {
	ctx := context.Background()
	x := New()
	if err := x.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	doc := search.Document{
		Kind:   store.KindTag,
		ID:     1,
		Fields: map[string]string{"name": "before"},
		Source: json.RawMessage(`{"name":"before"}`),
	}
	if err := x.Index(ctx, doc); err != nil {
		t.Fatal(err)
	}
	doc.Fields["name"] = "after"
	doc.Source[2] = 'X'

	got, ok := x.Get(store.KindTag, 1)
	if !ok {
		t.Fatal("document missing")
	}
	if got.Fields["name"] != "before" {
		t.Errorf("fields changed through caller map: %q", got.Fields["name"])
	}
	if string(got.Source) != `{"name":"before"}` {
		t.Errorf("source changed through caller slice: %s", got.Source)
	}
}
