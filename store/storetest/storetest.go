// Package storetest provides a conformance suite for store.Store
// implementations. Backends call Run from their own tests:
//
//	func TestConformance(t *testing.T) {
//	    storetest.Run(t, func(t *testing.T) store.Store { return memory.New() })
//	}
package storetest

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rbaliyan/blog/store"
)

// Factory returns a fresh, unconnected store for each subtest.
type Factory func(t *testing.T) store.Store

// Run executes the conformance suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"ModeCRUD", testModeCRUD},
		{"ModeEagerUser", testModeEagerUser},
		{"ModeReferences", testModeReferences},
		{"PostTagsAreASet", testPostTagsAreASet},
		{"PostEagerRelations", testPostEagerRelations},
		{"PostPagingDoesNotFanOut", testPostPaging},
		{"TagSortAndPage", testTagSortAndPage},
		{"DeleteDetachesRelations", testDeleteDetaches},
		{"UpdateMissingRow", testUpdateMissing},
		{"OutboxRecordsMutations", testOutbox},
		{"NotConnected", testNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()
			if err := s.Connect(ctx); err != nil {
				t.Fatalf("connect: %v", err)
			}
			t.Cleanup(func() { s.Close(context.Background()) })
			tt.fn(t, s)
		})
	}
}

func mustSaveUser(t *testing.T, s store.Store, login string) *store.User {
	t.Helper()
	u, err := s.Users().Save(context.Background(), &store.User{Login: login})
	if err != nil {
		t.Fatalf("save user: %v", err)
	}
	return u
}

func mustSaveMode(t *testing.T, s store.Store, m *store.Mode) *store.Mode {
	t.Helper()
	saved, err := s.Modes().Save(context.Background(), m)
	if err != nil {
		t.Fatalf("save mode: %v", err)
	}
	return saved
}

func mustSaveTag(t *testing.T, s store.Store, name string) *store.Tag {
	t.Helper()
	saved, err := s.Tags().Save(context.Background(), &store.Tag{Name: name})
	if err != nil {
		t.Fatalf("save tag: %v", err)
	}
	return saved
}

func mustSavePost(t *testing.T, s store.Store, p *store.Post) *store.Post {
	t.Helper()
	saved, err := s.Posts().Save(context.Background(), p)
	if err != nil {
		t.Fatalf("save post: %v", err)
	}
	return saved
}

func testModeCRUD(t *testing.T, s store.Store) {
	ctx := context.Background()
	repo := s.Modes()

	created := mustSaveMode(t, s, &store.Mode{Name: "AAAAAAAAAA", Handle: "AAAAAAAAAA"})
	if created.ID == 0 {
		t.Fatal("expected an assigned id")
	}

	got, err := repo.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "AAAAAAAAAA" || got.Handle != "AAAAAAAAAA" {
		t.Errorf("unexpected mode: %+v", got)
	}
	if !got.Equal(created) {
		t.Error("expected stored mode to equal created mode")
	}

	got.Handle = "BBBBBBBBBB"
	if _, err := repo.Save(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = repo.Get(ctx, created.ID)
	if got.Handle != "BBBBBBBBBB" || got.Name != "AAAAAAAAAA" {
		t.Errorf("unexpected mode after update: %+v", got)
	}

	ok, err := repo.Exists(ctx, created.ID)
	if err != nil || !ok {
		t.Errorf("expected exists, got %v %v", ok, err)
	}
	n, _ := repo.Count(ctx)
	if n != 1 {
		t.Errorf("expected count 1, got %d", n)
	}

	if err := repo.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := repo.Delete(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
	n, _ = repo.Count(ctx)
	if n != 0 {
		t.Errorf("expected count 0, got %d", n)
	}
}

func testModeEagerUser(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := mustSaveUser(t, s, "admin")
	m := mustSaveMode(t, s, &store.Mode{Name: "draft", Handle: "dr", User: &store.User{ID: u.ID}})

	lazy, err := s.Modes().Get(ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if lazy.User == nil || lazy.User.ID != u.ID {
		t.Fatalf("expected user reference %d, got %+v", u.ID, lazy.User)
	}

	eager, err := s.Modes().GetWithUser(ctx, m.ID)
	if err != nil {
		t.Fatalf("get with user: %v", err)
	}
	if eager.User == nil || eager.User.Login != "admin" {
		t.Errorf("expected joined user login, got %+v", eager.User)
	}

	page, err := s.Modes().FindAllWithUser(ctx, store.Unpaged())
	if err != nil {
		t.Fatalf("find all with user: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].User.GetID() != u.ID || page.Items[0].User.Login != "admin" {
		t.Errorf("unexpected eager page: %+v", page.Items)
	}
}

func testModeReferences(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.Modes().Save(ctx, &store.Mode{Name: "draft", Handle: "dr", User: &store.User{ID: 999}})
	var refErr *store.ReferenceError
	if !errors.As(err, &refErr) || refErr.Field != "user" {
		t.Fatalf("expected user ReferenceError, got %v", err)
	}
	if n, _ := s.Modes().Count(ctx); n != 0 {
		t.Errorf("expected no mode to be stored, got %d", n)
	}

	_, err = s.Posts().Save(ctx, &store.Post{Title: "t", Content: "c", Date: time.Now(), Tags: []*store.Tag{{ID: 42}}})
	if !errors.Is(err, store.ErrInvalidReference) {
		t.Fatalf("expected ErrInvalidReference for missing tag, got %v", err)
	}
	if n, _ := s.Posts().Count(ctx); n != 0 {
		t.Errorf("expected no post to be stored, got %d", n)
	}
}

func testPostTagsAreASet(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := mustSaveTag(t, s, "a")
	b := mustSaveTag(t, s, "b")

	p := mustSavePost(t, s, &store.Post{
		Title:   "title",
		Content: "content",
		Date:    time.Unix(0, 0),
		Tags:    []*store.Tag{{ID: b.ID}, {ID: a.ID}, {ID: b.ID}},
	})
	if len(p.Tags) != 2 {
		t.Fatalf("expected 2 tags after normalization, got %d", len(p.Tags))
	}

	got, err := s.Posts().Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	ids := got.TagIDs()
	if len(ids) != 2 || ids[0] != a.ID || ids[1] != b.ID {
		t.Errorf("expected tag ids [%d %d], got %v", a.ID, b.ID, ids)
	}
	if !got.Date.Equal(time.Unix(0, 0)) {
		t.Errorf("expected epoch date, got %v", got.Date)
	}

	got.RemoveTag(&store.Tag{ID: a.ID})
	if _, err := s.Posts().Save(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = s.Posts().Get(ctx, p.ID)
	if ids := got.TagIDs(); len(ids) != 1 || ids[0] != b.ID {
		t.Errorf("expected only tag %d, got %v", b.ID, ids)
	}
}

func testPostEagerRelations(t *testing.T, s store.Store) {
	ctx := context.Background()
	m := mustSaveMode(t, s, &store.Mode{Name: "public", Handle: "pub"})
	tag := mustSaveTag(t, s, "golang")
	p := mustSavePost(t, s, &store.Post{
		Title: "t", Content: "c", Date: time.Now(),
		Mode: &store.Mode{ID: m.ID},
		Tags: []*store.Tag{{ID: tag.ID}},
	})

	got, err := s.Posts().GetWithRelations(ctx, p.ID)
	if err != nil {
		t.Fatalf("get with relations: %v", err)
	}
	if got.Mode == nil || got.Mode.Name != "public" {
		t.Errorf("expected joined mode, got %+v", got.Mode)
	}
	if len(got.Tags) != 1 || got.Tags[0].Name != "golang" {
		t.Errorf("expected tag name golang, got %+v", got.Tags)
	}

	lazy, err := s.Posts().Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if lazy.Mode.GetID() != m.ID {
		t.Errorf("expected mode reference %d, got %+v", m.ID, lazy.Mode)
	}
}

func testPostPaging(t *testing.T, s store.Store) {
	ctx := context.Background()
	var tags []*store.Tag
	for _, name := range []string{"a", "b", "c"} {
		tags = append(tags, mustSaveTag(t, s, name))
	}
	for i := 0; i < 5; i++ {
		mustSavePost(t, s, &store.Post{Title: "t", Content: "c", Date: time.Now(), Tags: tags})
	}

	req := store.PageRequest{Page: 0, Size: 2, Sort: []store.Order{{Field: "id", Desc: true}}}
	page, err := s.Posts().FindAllWithRelations(ctx, req)
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if page.Total != 5 {
		t.Errorf("expected total 5, got %d", page.Total)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 posts on the page, got %d", len(page.Items))
	}
	if page.Items[0].ID < page.Items[1].ID {
		t.Error("expected descending ids")
	}
	for _, p := range page.Items {
		if len(p.Tags) != 3 {
			t.Errorf("expected 3 tags on post %d, got %d", p.ID, len(p.Tags))
		}
	}

	last, err := s.Posts().FindAll(ctx, store.PageRequest{Page: 2, Size: 2})
	if err != nil {
		t.Fatalf("find last page: %v", err)
	}
	if len(last.Items) != 1 || last.HasNext() {
		t.Errorf("expected a single final item, got %d (hasNext=%v)", len(last.Items), last.HasNext())
	}
}

func testTagSortAndPage(t *testing.T, s store.Store) {
	ctx := context.Background()
	for _, name := range []string{"delta", "alpha", "charlie", "bravo"} {
		mustSaveTag(t, s, name)
	}

	page, err := s.Tags().FindAll(ctx, store.PageRequest{Size: 3, Sort: []store.Order{{Field: "name"}}})
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	var names []string
	for _, tag := range page.Items {
		names = append(names, tag.Name)
	}
	want := []string{"alpha", "bravo", "charlie"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("expected %v, got %v", want, names)
			break
		}
	}

	far, err := s.Tags().FindAll(ctx, store.PageRequest{Page: math.MaxInt / 50, Size: 100})
	if err != nil {
		t.Fatalf("find far page: %v", err)
	}
	if len(far.Items) != 0 || far.Total != 4 {
		t.Errorf("far page = %d items of %d, want 0 of 4", len(far.Items), far.Total)
	}

	_, err = s.Tags().FindAll(ctx, store.PageRequest{Sort: []store.Order{{Field: "handle"}}})
	if !errors.Is(err, store.ErrInvalidSort) {
		t.Errorf("expected ErrInvalidSort, got %v", err)
	}
}

func testDeleteDetaches(t *testing.T, s store.Store) {
	ctx := context.Background()
	m := mustSaveMode(t, s, &store.Mode{Name: "public", Handle: "pub"})
	tag := mustSaveTag(t, s, "golang")
	p := mustSavePost(t, s, &store.Post{
		Title: "t", Content: "c", Date: time.Now(),
		Mode: &store.Mode{ID: m.ID},
		Tags: []*store.Tag{{ID: tag.ID}},
	})

	ids, err := s.Posts().IDsByMode(ctx, m.ID)
	if err != nil || len(ids) != 1 || ids[0] != p.ID {
		t.Fatalf("expected post %d by mode, got %v %v", p.ID, ids, err)
	}
	ids, err = s.Posts().IDsByTag(ctx, tag.ID)
	if err != nil || len(ids) != 1 || ids[0] != p.ID {
		t.Fatalf("expected post %d by tag, got %v %v", p.ID, ids, err)
	}

	if err := s.Modes().Delete(ctx, m.ID); err != nil {
		t.Fatalf("delete mode: %v", err)
	}
	if err := s.Tags().Delete(ctx, tag.ID); err != nil {
		t.Fatalf("delete tag: %v", err)
	}

	got, err := s.Posts().GetWithRelations(ctx, p.ID)
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if got.Mode != nil {
		t.Errorf("expected mode to be cleared, got %+v", got.Mode)
	}
	if len(got.Tags) != 0 {
		t.Errorf("expected tags to be cleared, got %+v", got.Tags)
	}
}

func testUpdateMissing(t *testing.T, s store.Store) {
	ctx := context.Background()
	if _, err := s.Modes().Save(ctx, &store.Mode{ID: 12345, Name: "name", Handle: "hd"}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for mode, got %v", err)
	}
	if _, err := s.Tags().Save(ctx, &store.Tag{ID: 12345, Name: "name"}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for tag, got %v", err)
	}
	if _, err := s.Posts().Save(ctx, &store.Post{ID: 12345, Title: "t", Content: "c", Date: time.Now()}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for post, got %v", err)
	}
	if n, _ := s.Outbox().PendingCount(ctx); n != 0 {
		t.Errorf("expected failed writes to leave no outbox rows, got %d", n)
	}
}

func testOutbox(t *testing.T, s store.Store) {
	ctx := context.Background()
	ob := s.Outbox()

	m := mustSaveMode(t, s, &store.Mode{Name: "public", Handle: "pub"})
	p := mustSavePost(t, s, &store.Post{Title: "t", Content: "c", Date: time.Now(), Mode: &store.Mode{ID: m.ID}})

	// Renaming the mode re-indexes the post that embeds it.
	m.Name = "renamed"
	mustSaveMode(t, s, m)

	pending, err := ob.Pending(ctx, 0)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected one task per entity (2), got %d: %+v", len(pending), pending)
	}
	if pending[0].Kind != store.KindMode || pending[0].EntityID != m.ID {
		t.Errorf("expected the mode first, got %+v", pending[0])
	}
	if pending[1].Kind != store.KindPost || pending[1].EntityID != p.ID {
		t.Errorf("expected the post second, got %+v", pending[1])
	}

	seq, err := ob.LatestSeq(ctx, store.KindMode, m.ID)
	if err != nil || seq == 0 {
		t.Fatalf("expected a sequence, got %d %v", seq, err)
	}
	if seq != pending[0].Seq {
		t.Errorf("expected latest seq %d, got %d", pending[0].Seq, seq)
	}

	if err := ob.Fail(ctx, store.KindPost, p.ID, errors.New("index down")); err != nil {
		t.Fatalf("fail: %v", err)
	}
	pending, _ = ob.Pending(ctx, 0)
	for _, task := range pending {
		if task.Kind == store.KindPost && (task.Attempts != 1 || task.LastError != "index down") {
			t.Errorf("expected failure recorded, got %+v", task)
		}
	}

	if err := ob.Ack(ctx, store.KindMode, m.ID, seq); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if seq, _ := ob.LatestSeq(ctx, store.KindMode, m.ID); seq != 0 {
		t.Errorf("expected no pending mode task after ack, got seq %d", seq)
	}

	if err := s.Posts().Delete(ctx, p.ID); err != nil {
		t.Fatalf("delete post: %v", err)
	}
	pending, _ = ob.Pending(ctx, 1)
	if len(pending) != 1 || pending[0].Op != store.OpDelete {
		t.Errorf("expected the latest post task to be a delete, got %+v", pending)
	}
}

func testNotConnected(t *testing.T, s store.Store) {
	ctx := context.Background()
	if err := s.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := s.Modes().Get(ctx, 1); !errors.Is(err, store.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if _, err := s.Outbox().PendingCount(ctx); !errors.Is(err, store.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}
