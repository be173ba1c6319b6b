package blog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/rbaliyan/blog/search"
	"github.com/rbaliyan/blog/store"
)

func TestModeSearch(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupTestService(t, WithSearchBatchSize(2))

	var ids []int64
	for i := range 5 {
		m := mustMode(t, svc, fmt.Sprintf("journal %d", i), fmt.Sprintf("j%d", i))
		ids = append(ids, m.ID)
	}
	other := mustMode(t, svc, "gallery", "gal")

	t.Run("id clause", func(t *testing.T) {
		got, err := svc.Modes().SearchAll(ctx, "id:"+strconv.FormatInt(other.ID, 10))
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(got) != 1 || got[0].ID != other.ID {
			t.Errorf("expected mode %d, got %v", other.ID, got)
		}
	})

	t.Run("pages through every batch", func(t *testing.T) {
		got, err := svc.Modes().SearchAll(ctx, "journal")
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(got) != len(ids) {
			t.Fatalf("expected %d modes, got %d", len(ids), len(got))
		}
		for i, m := range got {
			if m.ID != ids[i] {
				t.Errorf("position %d: expected id %d, got %d", i, ids[i], m.ID)
			}
		}
	})

	t.Run("sequence stops early", func(t *testing.T) {
		n := 0
		for _, err := range svc.Modes().Search(ctx, "*") {
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			n++
			if n == 3 {
				break
			}
		}
		if n != 3 {
			t.Errorf("expected 3 iterations, got %d", n)
		}
	})

	t.Run("sequence is restartable", func(t *testing.T) {
		seq := svc.Modes().Search(ctx, "gallery")
		for range 2 {
			n := 0
			for _, err := range seq {
				if err != nil {
					t.Fatalf("search: %v", err)
				}
				n++
			}
			if n != 1 {
				t.Errorf("expected 1 result per range, got %d", n)
			}
		}
	})

	t.Run("malformed query", func(t *testing.T) {
		_, err := svc.Modes().SearchAll(ctx, "name:")
		if !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("expected ErrInvalidQuery, got %v", err)
		}
		if !errors.Is(err, search.ErrQuerySyntax) {
			t.Errorf("expected error to match search.ErrQuerySyntax")
		}
	})

	t.Run("no match is empty", func(t *testing.T) {
		got, err := svc.Modes().SearchAll(ctx, "nothing")
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if got == nil || len(got) != 0 {
			t.Errorf("expected empty slice, got %v", got)
		}
	})
}

func TestPostSearchFollowsRelations(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupTestService(t)
	mode := mustMode(t, svc, "journal", "jr")
	tag := mustTag(t, svc, "golang")
	post := mustPost(t, svc, &store.Post{
		Title: "Concurrency patterns",
		Mode:  &store.Mode{ID: mode.ID},
		Tags:  []*store.Tag{{ID: tag.ID}},
	})
	mustPost(t, svc, &store.Post{Title: "Unrelated"})

	count := func(t *testing.T, q string) int64 {
		t.Helper()
		page, err := svc.Posts().Search(ctx, q, store.PageRequest{Size: 10})
		if err != nil {
			t.Fatalf("search %q: %v", q, err)
		}
		return page.Total
	}

	t.Run("matches embedded names", func(t *testing.T) {
		if n := count(t, "mode:journal"); n != 1 {
			t.Errorf("expected 1 post by mode, got %d", n)
		}
		if n := count(t, "tags:golang"); n != 1 {
			t.Errorf("expected 1 post by tag, got %d", n)
		}
		if n := count(t, "date:2019-01-01"); n != 2 {
			t.Errorf("expected 2 posts by date, got %d", n)
		}
	})

	t.Run("hits decode to posts", func(t *testing.T) {
		page, err := svc.Posts().Search(ctx, `title:"concurrency patterns"`, store.PageRequest{Size: 10})
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(page.Items) != 1 || page.Items[0].ID != post.ID {
			t.Fatalf("expected post %d, got %v", post.ID, page.Items)
		}
		if page.Items[0].Mode == nil || page.Items[0].Mode.Name != "journal" {
			t.Errorf("expected embedded mode in source, got %+v", page.Items[0].Mode)
		}
	})

	t.Run("renaming a tag reindexes its posts", func(t *testing.T) {
		if _, err := svc.Tags().Update(ctx, tag.ID, &store.Tag{ID: tag.ID, Name: "gopher"}); err != nil {
			t.Fatalf("update tag: %v", err)
		}
		if n := count(t, "tags:gopher"); n != 1 {
			t.Errorf("expected post under new tag name, got %d", n)
		}
		if n := count(t, "tags:golang"); n != 0 {
			t.Errorf("expected no post under old tag name, got %d", n)
		}
	})

	t.Run("deleting a mode reindexes its posts", func(t *testing.T) {
		if err := svc.Modes().Delete(ctx, mode.ID); err != nil {
			t.Fatalf("delete mode: %v", err)
		}
		if n := count(t, "mode:journal"); n != 0 {
			t.Errorf("expected no post under deleted mode, got %d", n)
		}
	})

	t.Run("deleted posts leave the index", func(t *testing.T) {
		if err := svc.Posts().Delete(ctx, post.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if n := count(t, "concurrency"); n != 0 {
			t.Errorf("expected deleted post gone from index, got %d", n)
		}
	})
}

func TestTagSearchPaging(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupTestService(t)
	for i := range 5 {
		mustTag(t, svc, fmt.Sprintf("tag%d", i))
	}

	page, err := svc.Tags().Search(ctx, "*", store.PageRequest{Page: 1, Size: 2})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if page.Total != 5 || len(page.Items) != 2 {
		t.Fatalf("expected 2 of 5, got %d of %d", len(page.Items), page.Total)
	}
	if !page.HasNext() {
		t.Error("expected another page")
	}
}
