// Package memory provides an in-memory Store implementation for testing.
// This store is not suitable for production use - data is not persisted.
package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rbaliyan/blog/store"
)

// Compile-time check
var _ store.Store = (*Store)(nil)

// Store implements store.Store with in-memory storage.
// Thread-safe for concurrent use. Not suitable for production.
//
// A single mutex guards every table, so each mutation (entity rows, relation
// rows and outbox task) is applied atomically.
type Store struct {
	mu     sync.RWMutex
	users  map[int64]*store.User
	modes  map[int64]*store.Mode
	posts  map[int64]*store.Post
	tags   map[int64]*store.Tag
	seq    map[store.Kind]int64
	outbox []store.IndexTask
	outSeq int64

	connected int32
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		users: make(map[int64]*store.User),
		modes: make(map[int64]*store.Mode),
		posts: make(map[int64]*store.Post),
		tags:  make(map[int64]*store.Tag),
		seq:   make(map[store.Kind]int64),
	}
}

// Connect marks the store as connected.
func (s *Store) Connect(_ context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}
	return nil
}

// Close marks the store as disconnected.
func (s *Store) Close(_ context.Context) error {
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

func (s *Store) checkConnected() error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	return nil
}

func (s *Store) Users() store.UserRepository { return &userRepo{s: s} }
func (s *Store) Modes() store.ModeRepository { return &modeRepo{s: s} }
func (s *Store) Posts() store.PostRepository { return &postRepo{s: s} }
func (s *Store) Tags() store.TagRepository   { return &tagRepo{s: s} }
func (s *Store) Outbox() store.Outbox        { return &outbox{s: s} }

// nextID assigns the next identifier for kind. Caller must hold s.mu.
func (s *Store) nextID(kind store.Kind) int64 {
	s.seq[kind]++
	return s.seq[kind]
}

// enqueue records an index task. Caller must hold s.mu.
func (s *Store) enqueue(kind store.Kind, id int64, op store.IndexOp) {
	s.outSeq++
	s.outbox = append(s.outbox, store.IndexTask{
		ID:        uuid.NewString(),
		Seq:       s.outSeq,
		Kind:      kind,
		EntityID:  id,
		Op:        op,
		CreatedAt: time.Now().UTC(),
	})
}

// postsReferencing returns posts that embed the mode or tag. Caller must hold s.mu.
func (s *Store) postsReferencing(kind store.Kind, id int64) []int64 {
	var ids []int64
	for _, p := range s.posts {
		switch kind {
		case store.KindMode:
			if p.Mode.GetID() == id {
				ids = append(ids, p.ID)
			}
		case store.KindTag:
			for _, t := range p.Tags {
				if t.ID == id {
					ids = append(ids, p.ID)
					break
				}
			}
		}
	}
	sortIDs(ids)
	return ids
}

// =============================================================================
// Outbox
// =============================================================================

type outbox struct {
	s *Store
}

func (o *outbox) Pending(ctx context.Context, limit int) ([]store.IndexTask, error) {
	if err := o.s.checkConnected(); err != nil {
		return nil, err
	}
	o.s.mu.RLock()
	defer o.s.mu.RUnlock()

	type key struct {
		kind store.Kind
		id   int64
	}
	latest := make(map[key]int)
	var order []key
	for i, t := range o.s.outbox {
		k := key{t.Kind, t.EntityID}
		if _, ok := latest[k]; !ok {
			order = append(order, k)
		}
		latest[k] = i
	}

	tasks := make([]store.IndexTask, 0, len(order))
	for _, k := range order {
		if limit > 0 && len(tasks) >= limit {
			break
		}
		tasks = append(tasks, o.s.outbox[latest[k]])
	}
	return tasks, nil
}

func (o *outbox) LatestSeq(ctx context.Context, kind store.Kind, id int64) (int64, error) {
	if err := o.s.checkConnected(); err != nil {
		return 0, err
	}
	o.s.mu.RLock()
	defer o.s.mu.RUnlock()

	var seq int64
	for _, t := range o.s.outbox {
		if t.Kind == kind && t.EntityID == id && t.Seq > seq {
			seq = t.Seq
		}
	}
	return seq, nil
}

func (o *outbox) Ack(ctx context.Context, kind store.Kind, id int64, seq int64) error {
	if err := o.s.checkConnected(); err != nil {
		return err
	}
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	kept := o.s.outbox[:0]
	for _, t := range o.s.outbox {
		if t.Kind == kind && t.EntityID == id && t.Seq <= seq {
			continue
		}
		kept = append(kept, t)
	}
	o.s.outbox = kept
	return nil
}

func (o *outbox) Fail(ctx context.Context, kind store.Kind, id int64, cause error) error {
	if err := o.s.checkConnected(); err != nil {
		return err
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	for i := range o.s.outbox {
		t := &o.s.outbox[i]
		if t.Kind == kind && t.EntityID == id {
			t.Attempts++
			t.LastError = msg
		}
	}
	return nil
}

func (o *outbox) PendingCount(ctx context.Context) (int64, error) {
	if err := o.s.checkConnected(); err != nil {
		return 0, err
	}
	o.s.mu.RLock()
	defer o.s.mu.RUnlock()
	return int64(len(o.s.outbox)), nil
}
