// Package store provides interfaces and types for the blog's primary store.
// Implementations are in store/sqldb and store/memory subpackages.
//
// # Index Outbox
//
// The primary store is the system of record. The search index is a derived
// copy that is kept in sync asynchronously. To make that sync recoverable,
// every Save and Delete records an IndexTask in the same transaction as the
// entity write:
//
//	BEGIN
//	  UPDATE mode SET ... WHERE id = 7
//	  INSERT INTO index_outbox (kind, entity_id, op) VALUES ('mode', 7, 'index')
//	COMMIT
//
// A crash between the primary write and the index write therefore leaves a
// pending task behind instead of a silent divergence. Consumers read the
// latest sequence for an entity, apply the entity's current state to the
// index, and Ack everything up to that sequence:
//
//	seq, _ := s.Outbox().LatestSeq(ctx, store.KindMode, 7)
//	mode, err := s.Modes().GetWithUser(ctx, 7) // ErrNotFound -> delete from index
//	// ... write to index ...
//	s.Outbox().Ack(ctx, store.KindMode, 7, seq)
//
// Applying current state rather than replaying operations makes duplicate or
// out-of-order processing converge on the primary store's state.
package store

import (
	"context"
	"time"
)

// Store is the storage interface for the blog.
//
// All operations must be safe for concurrent use. Mutations run inside a
// single transaction per call: either the entity row, its relation rows and
// its outbox task are all written, or none are.
type Store interface {
	// Lifecycle
	Connect(ctx context.Context) error
	Close(ctx context.Context) error

	Users() UserRepository
	Modes() ModeRepository
	Posts() PostRepository
	Tags() TagRepository

	// Outbox exposes the pending index tasks recorded by mutations.
	Outbox() Outbox
}

// Repository is the per-kind CRUD contract.
//
// Reads that are not relationship-aware return references with only the
// identifier set (for example Mode.User = &User{ID: 3}).
type Repository[T Entity] interface {
	// Save inserts the entity when its ID is zero and assigns the new ID,
	// otherwise it overwrites the stored row. Updating a missing row returns
	// ErrNotFound. Dangling references return a *ReferenceError.
	Save(ctx context.Context, e T) (T, error)
	// Get returns the entity or ErrNotFound.
	Get(ctx context.Context, id int64) (T, error)
	// Exists reports whether a row with the id is stored.
	Exists(ctx context.Context, id int64) (bool, error)
	// Delete removes the entity or returns ErrNotFound.
	Delete(ctx context.Context, id int64) error
	// Count returns the number of stored rows.
	Count(ctx context.Context) (int64, error)
	// FindAll returns one page of entities.
	FindAll(ctx context.Context, req PageRequest) (*Page[T], error)
}

// UserRepository stores mode owners.
type UserRepository interface {
	Repository[*User]
}

// ModeRepository stores modes.
type ModeRepository interface {
	Repository[*Mode]
	// GetWithUser loads the mode with its owning user joined in the same query.
	GetWithUser(ctx context.Context, id int64) (*Mode, error)
	// FindAllWithUser is FindAll with the owning user joined.
	FindAllWithUser(ctx context.Context, req PageRequest) (*Page[*Mode], error)
}

// PostRepository stores posts and their tag memberships.
type PostRepository interface {
	Repository[*Post]
	// GetWithRelations loads the post with its mode joined and its tags
	// fetched by a second query.
	GetWithRelations(ctx context.Context, id int64) (*Post, error)
	// FindAllWithRelations pages over posts with the mode joined. Tags are
	// fetched afterwards for the ids on the page, never joined into the paged
	// query, so paging counts posts rather than post-tag rows.
	FindAllWithRelations(ctx context.Context, req PageRequest) (*Page[*Post], error)
	// IDsByMode returns the posts that reference the mode.
	IDsByMode(ctx context.Context, modeID int64) ([]int64, error)
	// IDsByTag returns the posts tagged with the tag.
	IDsByTag(ctx context.Context, tagID int64) ([]int64, error)
}

// TagRepository stores tags.
type TagRepository interface {
	Repository[*Tag]
}

// IndexOp is the index mutation a task was recorded for.
type IndexOp string

const (
	OpIndex  IndexOp = "index"
	OpDelete IndexOp = "delete"
)

// IndexTask is one pending index mutation.
type IndexTask struct {
	ID        string
	Seq       int64
	Kind      Kind
	EntityID  int64
	Op        IndexOp
	Attempts  int
	LastError string
	CreatedAt time.Time
}

// Outbox gives access to pending index tasks.
type Outbox interface {
	// Pending returns up to limit pending tasks, one per entity (the latest),
	// oldest first. A limit of zero or less returns them all.
	Pending(ctx context.Context, limit int) ([]IndexTask, error)
	// LatestSeq returns the highest pending sequence for the entity, or 0.
	LatestSeq(ctx context.Context, kind Kind, id int64) (int64, error)
	// Ack removes the entity's tasks with a sequence up to and including seq.
	Ack(ctx context.Context, kind Kind, id int64, seq int64) error
	// Fail records a failed attempt on the entity's pending tasks.
	Fail(ctx context.Context, kind Kind, id int64, cause error) error
	// PendingCount returns the number of pending tasks.
	PendingCount(ctx context.Context) (int64, error)
}
