package blog

import (
	"context"
	"errors"
	"fmt"
	"hash/maphash"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbaliyan/blog/retry"
	"github.com/rbaliyan/blog/search"
	"github.com/rbaliyan/blog/store"
	"golang.org/x/sync/errgroup"
)

// syncLockStripes is the number of mutexes entity syncs are spread over.
const syncLockStripes = 64

// stripedLocks serializes work per (kind, id) within one process using a
// fixed set of mutexes. Unrelated entities may share a stripe.
type stripedLocks struct {
	seed  maphash.Seed
	locks []sync.Mutex
}

func newStripedLocks(n int) *stripedLocks {
	return &stripedLocks{seed: maphash.MakeSeed(), locks: make([]sync.Mutex, n)}
}

func (l *stripedLocks) lock(kind store.Kind, id int64) func() {
	var h maphash.Hash
	h.SetSeed(l.seed)
	h.WriteString(string(kind))
	fmt.Fprint(&h, id)
	m := &l.locks[h.Sum64()%uint64(len(l.locks))]
	m.Lock()
	return m.Unlock
}

// entityRef names one entity to sync.
type entityRef struct {
	kind store.Kind
	id   int64
}

func refs(kind store.Kind, ids ...int64) []entityRef {
	out := make([]entityRef, 0, len(ids))
	for _, id := range ids {
		out = append(out, entityRef{kind: kind, id: id})
	}
	return out
}

// dispatch syncs the index for each entity after a primary write committed.
// In background mode a sync that cannot get a slot before ctx ends is left
// in the outbox for DrainIndexOutbox.
func (s *service) dispatch(ctx context.Context, targets ...entityRef) {
	for _, t := range targets {
		if s.opts.syncIndexing {
			s.runSync(ctx, t.kind, t.id)
			continue
		}
		if err := s.indexSem.Acquire(ctx, 1); err != nil {
			s.logger.Warn("index sync deferred to outbox drain",
				"kind", t.kind, "id", t.id, "error", err)
			continue
		}
		if !s.IsConnected() {
			s.indexSem.Release(1)
			continue
		}
		go func(t entityRef) {
			defer s.indexSem.Release(1)
			s.runSync(ctx, t.kind, t.id)
		}(t)
	}
}

// runSync syncs one entity with retries and reports a final failure.
// It never fails the caller.
func (s *service) runSync(ctx context.Context, kind store.Kind, id int64) error {
	base := context.WithoutCancel(ctx)
	syncCtx, cancel := context.WithTimeout(base, s.opts.indexTimeout)
	defer cancel()

	syncCtx, done := s.otel.track(syncCtx, opIndexSync, kind)
	cfg := s.opts.indexRetry
	onRetry := cfg.OnRetry
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		s.otel.recordRetry(syncCtx, kind)
		s.logger.Debug("index sync failed, retrying",
			"kind", kind, "id", id, "attempt", attempt, "wait", wait, "error", err)
		if onRetry != nil {
			onRetry(attempt, err, wait)
		}
	}
	err := retry.Do(syncCtx, cfg, func(ctx context.Context) error {
		return s.syncEntity(ctx, kind, id)
	})
	done(err)
	if err == nil {
		return nil
	}

	// syncCtx may be past its deadline; the bookkeeping gets its own.
	failCtx, failCancel := context.WithTimeout(base, s.opts.indexTimeout)
	defer failCancel()

	failure := &IndexSyncError{Kind: kind, ID: id, Err: err}
	if ferr := s.store.Outbox().Fail(failCtx, kind, id, err); ferr != nil {
		s.logger.Error("failed to record index sync failure",
			"kind", kind, "id", id, "error", ferr)
	}
	s.opts.safeIndexFailure(failure)
	s.publishIndexSyncFailed(failCtx, failure)
	return failure
}

// syncEntity applies the entity's current primary-store state to the index and
// acknowledges the outbox tasks that state covers.
func (s *service) syncEntity(ctx context.Context, kind store.Kind, id int64) error {
	unlock := s.locks.lock(kind, id)
	defer unlock()

	outbox := s.store.Outbox()
	seq, err := outbox.LatestSeq(ctx, kind, id)
	if err != nil {
		return fmt.Errorf("read outbox: %w", err)
	}

	if !isIndexed(kind) {
		if seq > 0 {
			return outbox.Ack(ctx, kind, id, seq)
		}
		return nil
	}

	doc, err := s.loadDocument(ctx, kind, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if err := s.index.Delete(ctx, kind, id); err != nil {
			return fmt.Errorf("delete from index: %w", err)
		}
	case err != nil:
		return fmt.Errorf("load: %w", err)
	default:
		if err := s.index.Index(ctx, doc); err != nil {
			return fmt.Errorf("write to index: %w", err)
		}
	}

	if seq > 0 {
		if err := outbox.Ack(ctx, kind, id, seq); err != nil {
			return fmt.Errorf("ack outbox: %w", err)
		}
	}
	return nil
}

func isIndexed(kind store.Kind) bool {
	_, ok := search.Fields[kind]
	return ok
}

// loadDocument reads the entity eagerly and builds its index document.
func (s *service) loadDocument(ctx context.Context, kind store.Kind, id int64) (search.Document, error) {
	switch kind {
	case store.KindMode:
		m, err := s.store.Modes().GetWithUser(ctx, id)
		if err != nil {
			return search.Document{}, err
		}
		return modeDocument(m)
	case store.KindPost:
		p, err := s.store.Posts().GetWithRelations(ctx, id)
		if err != nil {
			return search.Document{}, err
		}
		return postDocument(p)
	case store.KindTag:
		t, err := s.store.Tags().Get(ctx, id)
		if err != nil {
			return search.Document{}, err
		}
		return tagDocument(t)
	}
	return search.Document{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
}

// DrainResult reports one DrainIndexOutbox pass.
type DrainResult struct {
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"` // tasks over the attempt limit
}

// DrainIndexOutbox re-applies pending index tasks, one sync per entity.
// Tasks that failed WithMaxIndexAttempts times are skipped and reported;
// Reindex of their kind repairs and acknowledges them.
func (s *service) DrainIndexOutbox(ctx context.Context) (*DrainResult, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	tasks, err := s.store.Outbox().Pending(ctx, s.opts.drainBatchSize)
	if err != nil {
		return nil, fmt.Errorf("read outbox: %w", translateError(err))
	}
	if n, err := s.store.Outbox().PendingCount(ctx); err == nil {
		s.otel.recordPending(ctx, n)
	}

	var synced, failed, skipped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.maxConcurrentIndexWrites)
	for _, task := range tasks {
		if task.Attempts >= s.opts.maxIndexAttempts {
			skipped.Add(1)
			s.logger.Warn("index task over attempt limit, reindex required",
				"kind", task.Kind, "id", task.EntityID, "seq", task.Seq,
				"attempts", task.Attempts, "error", task.LastError)
			continue
		}
		g.Go(func() error {
			if err := s.runSync(gctx, task.Kind, task.EntityID); err != nil {
				failed.Add(1)
				return nil
			}
			synced.Add(1)
			return nil
		})
	}
	g.Wait()

	res := &DrainResult{
		Synced:  int(synced.Load()),
		Failed:  int(failed.Load()),
		Skipped: int(skipped.Load()),
	}
	if res.Synced+res.Failed+res.Skipped > 0 {
		s.logger.Info("index outbox drained",
			"synced", res.Synced, "failed", res.Failed, "skipped", res.Skipped)
	}
	return res, nil
}

// Reindex clears the index of kind and rebuilds it from the primary store,
// returning the number of documents written. Outbox tasks of kind pending
// before the rebuild are acknowledged by it, including those over the attempt
// limit. Writes racing with a reindex keep their own later tasks.
func (s *service) Reindex(ctx context.Context, kind store.Kind) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	if !isIndexed(kind) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	covered, err := s.pendingSeqs(ctx, kind)
	if err != nil {
		return 0, err
	}

	if err := s.index.Clear(ctx, kind); err != nil {
		return 0, fmt.Errorf("clear index: %w", translateError(err))
	}

	var n int64
	req := store.PageRequest{Size: s.opts.reindexBatchSize, Sort: []store.Order{{Field: "id"}}}
	for {
		docs, hasNext, err := s.reindexPage(ctx, kind, req)
		if err != nil {
			return n, err
		}
		for _, doc := range docs {
			if err := s.index.Index(ctx, doc); err != nil {
				return n, fmt.Errorf("index %s %d: %w", kind, doc.ID, translateError(err))
			}
			n++
		}
		if !hasNext {
			break
		}
		req = req.Next()
	}

	for id, seq := range covered {
		if err := s.store.Outbox().Ack(ctx, kind, id, seq); err != nil {
			return n, fmt.Errorf("ack outbox: %w", translateError(err))
		}
	}

	s.logger.Info("reindex complete", "kind", kind, "documents", n, "acked", len(covered))
	return n, nil
}

// pendingSeqs maps each entity of kind with pending tasks to its latest sequence.
func (s *service) pendingSeqs(ctx context.Context, kind store.Kind) (map[int64]int64, error) {
	tasks, err := s.store.Outbox().Pending(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("read outbox: %w", translateError(err))
	}
	seqs := make(map[int64]int64)
	for _, t := range tasks {
		if t.Kind == kind {
			seqs[t.EntityID] = t.Seq
		}
	}
	return seqs, nil
}

// reindexPage loads one page of kind and builds its documents.
func (s *service) reindexPage(ctx context.Context, kind store.Kind, req store.PageRequest) ([]search.Document, bool, error) {
	var (
		docs    []search.Document
		hasNext bool
		err     error
	)
	switch kind {
	case store.KindMode:
		var page *store.Page[*store.Mode]
		if page, err = s.store.Modes().FindAllWithUser(ctx, req); err == nil {
			docs, err = buildDocuments(page.Items, modeDocument)
			hasNext = page.HasNext()
		}
	case store.KindPost:
		var page *store.Page[*store.Post]
		if page, err = s.store.Posts().FindAllWithRelations(ctx, req); err == nil {
			docs, err = buildDocuments(page.Items, postDocument)
			hasNext = page.HasNext()
		}
	case store.KindTag:
		var page *store.Page[*store.Tag]
		if page, err = s.store.Tags().FindAll(ctx, req); err == nil {
			docs, err = buildDocuments(page.Items, tagDocument)
			hasNext = page.HasNext()
		}
	}
	if err != nil {
		return nil, false, fmt.Errorf("load %s page %d: %w", kind, req.Page, translateError(err))
	}
	return docs, hasNext, nil
}

func buildDocuments[T any](items []T, build func(T) (search.Document, error)) ([]search.Document, error) {
	docs := make([]search.Document, 0, len(items))
	for _, item := range items {
		doc, err := build(item)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
