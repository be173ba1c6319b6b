package blog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rbaliyan/blog/retry"
	"github.com/rbaliyan/blog/search"
	searchmem "github.com/rbaliyan/blog/search/memory"
	"github.com/rbaliyan/blog/store"
	"github.com/rbaliyan/blog/store/memory"
	"github.com/rbaliyan/blog/store/sqldb"
)

var errIndexDown = errors.New("index unavailable")

// flakyIndex fails writes while down is set and blocks them until the
// context ends while hang is set.
type flakyIndex struct {
	backend *searchmem.Index
	down    atomic.Bool
	hang    atomic.Bool
}

func (f *flakyIndex) fail(ctx context.Context) error {
	if f.hang.Load() {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.down.Load() {
		return errIndexDown
	}
	return nil
}

func (f *flakyIndex) Connect(ctx context.Context) error { return f.backend.Connect(ctx) }
func (f *flakyIndex) Close(ctx context.Context) error   { return f.backend.Close(ctx) }

func (f *flakyIndex) Index(ctx context.Context, doc search.Document) error {
	if err := f.fail(ctx); err != nil {
		return err
	}
	return f.backend.Index(ctx, doc)
}

func (f *flakyIndex) Delete(ctx context.Context, kind store.Kind, id int64) error {
	if err := f.fail(ctx); err != nil {
		return err
	}
	return f.backend.Delete(ctx, kind, id)
}

func (f *flakyIndex) Search(ctx context.Context, kind store.Kind, q search.Query, req store.PageRequest) (*search.Result, error) {
	return f.backend.Search(ctx, kind, q, req)
}

func (f *flakyIndex) Count(ctx context.Context, kind store.Kind) (int64, error) {
	return f.backend.Count(ctx, kind)
}

func (f *flakyIndex) Clear(ctx context.Context, kind store.Kind) error {
	return f.backend.Clear(ctx, kind)
}

// failureRecorder collects index sync failures.
type failureRecorder struct {
	mu       sync.Mutex
	failures []*IndexSyncError
}

func (r *failureRecorder) record(err *IndexSyncError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, err)
}

func (r *failureRecorder) all() []*IndexSyncError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*IndexSyncError(nil), r.failures...)
}

func setupFlakyService(t *testing.T, opts ...Option) (Service, *flakyIndex, *failureRecorder) {
	t.Helper()
	idx := &flakyIndex{backend: searchmem.New()}
	rec := &failureRecorder{}
	base := []Option{
		WithStore(memory.New()),
		WithIndex(idx),
		WithSyncIndexing(true),
		WithIndexRetry(retry.Config{MaxRetries: 1, InitialBackoff: time.Millisecond}),
		WithIndexFailureHandler(rec.record),
	}
	svc, err := NewService(append(base, opts...)...)
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	if err := svc.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { svc.Close(context.Background()) })
	return svc, idx, rec
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBackgroundIndexSync(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	idx := searchmem.New()
	svc, err := NewService(WithStore(st), WithIndex(idx))
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	if err := svc.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer svc.Close(ctx)

	tag, err := svc.Tags().Create(ctx, &store.Tag{Name: "golang"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	waitFor(t, "index document", func() bool {
		_, ok := idx.Get(store.KindTag, tag.ID)
		return ok
	})
	waitFor(t, "empty outbox", func() bool {
		n, err := svc.IndexBacklog(ctx)
		return err == nil && n == 0
	})

	doc, _ := idx.Get(store.KindTag, tag.ID)
	if doc.Fields["name"] != "golang" {
		t.Errorf("expected indexed name, got %q", doc.Fields["name"])
	}
}

func TestIndexSyncFailure(t *testing.T) {
	ctx := context.Background()
	svc, idx, rec := setupFlakyService(t)

	idx.down.Store(true)
	tag, err := svc.Tags().Create(ctx, &store.Tag{Name: "golang"})
	if err != nil {
		t.Fatalf("a failed index write must not fail the mutation: %v", err)
	}

	failures := rec.all()
	if len(failures) != 1 {
		t.Fatalf("expected 1 reported failure, got %d", len(failures))
	}
	if failures[0].Kind != store.KindTag || failures[0].ID != tag.ID {
		t.Errorf("unexpected failure %v", failures[0])
	}
	if !errors.Is(failures[0], errIndexDown) {
		t.Errorf("expected failure to wrap the index error, got %v", failures[0].Err)
	}

	backlog, err := svc.IndexBacklog(ctx)
	if err != nil {
		t.Fatalf("backlog: %v", err)
	}
	if backlog != 1 {
		t.Errorf("expected task left in outbox, got %d", backlog)
	}

	t.Run("drain repairs the index", func(t *testing.T) {
		idx.down.Store(false)
		res, err := svc.DrainIndexOutbox(ctx)
		if err != nil {
			t.Fatalf("drain: %v", err)
		}
		if res.Synced != 1 || res.Failed != 0 || res.Skipped != 0 {
			t.Errorf("unexpected drain result %+v", res)
		}
		if _, ok := idx.backend.Get(store.KindTag, tag.ID); !ok {
			t.Error("expected document after drain")
		}
		backlog, _ := svc.IndexBacklog(ctx)
		if backlog != 0 {
			t.Errorf("expected empty outbox, got %d", backlog)
		}
	})
}

func TestDrainSkipsExhaustedTasks(t *testing.T) {
	ctx := context.Background()
	svc, idx, _ := setupFlakyService(t, WithMaxIndexAttempts(1))

	idx.down.Store(true)
	if _, err := svc.Tags().Create(ctx, &store.Tag{Name: "golang"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	idx.down.Store(false)

	res, err := svc.DrainIndexOutbox(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if res.Skipped != 1 || res.Synced != 0 {
		t.Errorf("expected the exhausted task skipped, got %+v", res)
	}

	t.Run("reindex acknowledges the skipped task", func(t *testing.T) {
		if _, err := svc.Reindex(ctx, store.KindTag); err != nil {
			t.Fatalf("reindex: %v", err)
		}
		if n, err := svc.IndexBacklog(ctx); err != nil || n != 0 {
			t.Errorf("expected empty outbox after reindex, got %d (%v)", n, err)
		}
		res, err := svc.DrainIndexOutbox(ctx)
		if err != nil {
			t.Fatalf("drain: %v", err)
		}
		if res.Skipped != 0 || res.Synced != 0 || res.Failed != 0 {
			t.Errorf("expected nothing left to drain, got %+v", res)
		}
		if n, _ := idx.backend.Count(ctx, store.KindTag); n != 1 {
			t.Errorf("expected 1 indexed tag, got %d", n)
		}
	})
}

func TestIndexTimeoutRecordsFailure(t *testing.T) {
	ctx := context.Background()
	dsn := fmt.Sprintf("file:blogindextimeout%d?mode=memory&cache=shared&_foreign_keys=1", time.Now().UnixNano())
	st, db, err := sqldb.Open(sqldb.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	idx := &flakyIndex{backend: searchmem.New()}
	idx.hang.Store(true)
	rec := &failureRecorder{}
	svc, err := NewService(
		WithStore(st),
		WithIndex(idx),
		WithSyncIndexing(true),
		WithIndexTimeout(50*time.Millisecond),
		WithIndexRetry(retry.Config{MaxRetries: 1, InitialBackoff: time.Millisecond}),
		WithIndexFailureHandler(rec.record),
	)
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	if err := svc.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { svc.Close(context.Background()) })

	tag, err := svc.Tags().Create(ctx, &store.Tag{Name: "golang"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := len(rec.all()); got != 1 {
		t.Fatalf("expected 1 reported failure, got %d", got)
	}

	tasks, err := st.Outbox().Pending(ctx, 0)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 pending task, got %d", len(tasks))
	}
	task := tasks[0]
	if task.Kind != store.KindTag || task.EntityID != tag.ID {
		t.Errorf("unexpected task %+v", task)
	}
	if task.Attempts != 1 {
		t.Errorf("expected the failed attempt recorded, got %d attempts", task.Attempts)
	}
	if task.LastError == "" {
		t.Error("expected last error recorded")
	}
}

func TestDeleteOfMissingRowClearsStaleDocument(t *testing.T) {
	ctx := context.Background()
	svc, idx, _ := setupFlakyService(t)

	if err := idx.backend.Index(ctx, search.Document{
		Kind:   store.KindTag,
		ID:     7,
		Fields: map[string]string{"id": "7", "name": "stale"},
		Source: []byte(`{"id":7,"name":"stale"}`),
	}); err != nil {
		t.Fatalf("seed index: %v", err)
	}

	if err := svc.Tags().Delete(ctx, 7); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := idx.backend.Get(store.KindTag, 7); ok {
		t.Error("expected stale document removed")
	}
}

func TestReindex(t *testing.T) {
	ctx := context.Background()
	svc, _, idx := setupTestService(t, WithReindexBatchSize(2))
	for _, name := range []string{"a", "b", "c"} {
		mustTag(t, svc, name)
	}

	if err := idx.Clear(ctx, store.KindTag); err != nil {
		t.Fatalf("clear: %v", err)
	}
	n, err := svc.Reindex(ctx, store.KindTag)
	if err != nil {
		t.Fatalf("reindex: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 documents, got %d", n)
	}
	count, _ := idx.Count(ctx, store.KindTag)
	if count != 3 {
		t.Errorf("expected 3 indexed tags, got %d", count)
	}

	if _, err := svc.Reindex(ctx, store.KindUser); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
}

func TestStripedLocks(t *testing.T) {
	l := newStripedLocks(4)
	var inside atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.lock(store.KindMode, 1)
			defer unlock()
			if inside.Add(1) != 1 {
				t.Error("two holders of the same entity lock")
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()
}

func TestBackgroundDeleteRemovesDocument(t *testing.T) {
	ctx := context.Background()
	svc, _, idx := setupBackgroundService(t)

	var tags []*store.Tag
	for _, name := range []string{"alpha", "bravo", "charlie"} {
		tag, err := svc.Tags().Create(ctx, &store.Tag{Name: name})
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		tags = append(tags, tag)
	}

	count := func() int64 {
		n, err := idx.Count(ctx, store.KindTag)
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		return n
	}
	found := func(name string) bool {
		page, err := svc.Tags().Search(ctx, "name:"+name, store.Unpaged())
		return err == nil && page.Total == 1
	}

	waitFor(t, "three indexed tags", func() bool { return count() == 3 })
	waitFor(t, "bravo searchable", func() bool { return found("bravo") })

	if err := svc.Tags().Delete(ctx, tags[1].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	waitFor(t, "two indexed tags", func() bool { return count() == 2 })

	if found("bravo") {
		t.Error("expected deleted tag gone from search")
	}
	if !found("alpha") || !found("charlie") {
		t.Error("expected remaining tags still searchable")
	}
	waitFor(t, "empty outbox", func() bool {
		n, err := svc.IndexBacklog(ctx)
		return err == nil && n == 0
	})
}
