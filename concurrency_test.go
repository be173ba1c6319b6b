package blog

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	searchmem "github.com/rbaliyan/blog/search/memory"
	"github.com/rbaliyan/blog/store"
	"github.com/rbaliyan/blog/store/memory"
)

var testDate = time.Date(2019, 1, 1, 10, 0, 0, 0, time.UTC)

func setupBackgroundService(t *testing.T) (Service, *memory.Store, *searchmem.Index) {
	t.Helper()
	st := memory.New()
	idx := searchmem.New()
	svc, err := NewService(WithStore(st), WithIndex(idx), WithMaxConcurrentIndexWrites(4))
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	if err := svc.Connect(context.Background()); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { svc.Close(context.Background()) })
	return svc, st, idx
}

func TestConcurrency_UpdatesConverge(t *testing.T) {
	ctx := context.Background()
	svc, st, idx := setupBackgroundService(t)

	tag, err := svc.Tags().Create(ctx, &store.Tag{Name: "initial"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const writers = 10
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := range writers {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.Tags().Update(ctx, tag.ID, &store.Tag{ID: tag.ID, Name: fmt.Sprintf("name%d", n)})
			if err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("update error: %v", err)
	}

	waitFor(t, "empty outbox", func() bool {
		n, err := svc.IndexBacklog(ctx)
		return err == nil && n == 0
	})

	stored, err := st.Tags().Get(ctx, tag.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	doc, ok := idx.Get(store.KindTag, tag.ID)
	if !ok {
		t.Fatal("expected indexed document")
	}
	if doc.Fields["name"] != stored.Name {
		t.Errorf("index diverged: store has %q, index has %q", stored.Name, doc.Fields["name"])
	}
}

func TestConcurrency_ParallelCreates(t *testing.T) {
	ctx := context.Background()
	svc, _, idx := setupBackgroundService(t)

	const creators = 5
	const postsPerCreator = 4

	var wg sync.WaitGroup
	errs := make(chan error, creators*postsPerCreator)
	for i := range creators {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := range postsPerCreator {
				_, err := svc.Posts().Create(ctx, &store.Post{
					Title:   fmt.Sprintf("post %d-%d", n, j),
					Content: "content",
					Date:    testDate,
				})
				if err != nil {
					errs <- err
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("create error: %v", err)
	}

	total, err := svc.Posts().Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != creators*postsPerCreator {
		t.Errorf("expected %d posts, got %d", creators*postsPerCreator, total)
	}

	waitFor(t, "every post indexed", func() bool {
		n, err := idx.Count(ctx, store.KindPost)
		return err == nil && n == total
	})
}
