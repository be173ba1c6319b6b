package blog

import (
	"context"
	"errors"

	"github.com/rbaliyan/blog/store"
)

// entityOps binds the per-kind pieces the shared mutation flow needs.
type entityOps[T store.Entity] struct {
	kind     store.Kind
	repo     store.Repository[T]
	load     func(ctx context.Context, id int64) (T, error) // eager read
	validate func(e T, limits Limits) error
	clone    func(e T) T
	// dependents returns the posts whose index documents embed the entity.
	dependents func(ctx context.Context, id int64) ([]int64, error)
}

// get returns the eagerly loaded entity.
func (ops entityOps[T]) get(ctx context.Context, s *service, id int64) (result T, err error) {
	if err := s.checkConnected(); err != nil {
		return result, err
	}
	ctx, done := s.otel.track(ctx, opGet, ops.kind)
	defer func() { done(err) }()

	e, err := ops.load(ctx, id)
	if err != nil {
		return result, translateError(err)
	}
	return e, nil
}

func (ops entityOps[T]) create(ctx context.Context, s *service, e T) (result T, err error) {
	if err := s.checkConnected(); err != nil {
		return result, err
	}
	ctx, done := s.otel.track(ctx, opCreate, ops.kind)
	defer func() { done(err) }()

	if e.GetID() != 0 {
		return result, badRequest(ops.kind, ReasonIDExists, "A new "+string(ops.kind)+" cannot already have an ID")
	}
	if err := ops.validate(e, s.opts.limits()); err != nil {
		return result, err
	}

	saved, err := ops.save(ctx, s, ops.clone(e))
	if err != nil {
		return result, err
	}
	s.dispatch(ctx, entityRef{kind: ops.kind, id: saved.GetID()})

	result = ops.reload(ctx, s, saved)
	return result, s.publishCreated(ctx, ops.kind, saved.GetID())
}

// checkTarget enforces the identifier rules of full and partial updates.
func (ops entityOps[T]) checkTarget(ctx context.Context, s *service, pathID, bodyID int64) error {
	if bodyID == 0 {
		return badRequest(ops.kind, ReasonIDNull, "Invalid id")
	}
	if bodyID != pathID {
		return badRequest(ops.kind, ReasonIDInvalid, "Invalid ID")
	}
	ok, err := ops.repo.Exists(ctx, pathID)
	if err != nil {
		return translateError(err)
	}
	if !ok {
		return badRequest(ops.kind, ReasonIDNotFound, "Entity not found")
	}
	return nil
}

func (ops entityOps[T]) update(ctx context.Context, s *service, id int64, e T) (result T, err error) {
	if err := s.checkConnected(); err != nil {
		return result, err
	}
	ctx, done := s.otel.track(ctx, opUpdate, ops.kind)
	defer func() { done(err) }()

	if err := ops.checkTarget(ctx, s, id, e.GetID()); err != nil {
		return result, err
	}
	if err := ops.validate(e, s.opts.limits()); err != nil {
		return result, err
	}
	return ops.overwrite(ctx, s, ops.clone(e))
}

// patch folds apply onto the stored entity and saves the result.
func (ops entityOps[T]) patch(ctx context.Context, s *service, id, patchID int64, apply func(T) error) (result T, err error) {
	if err := s.checkConnected(); err != nil {
		return result, err
	}
	ctx, done := s.otel.track(ctx, opPatch, ops.kind)
	defer func() { done(err) }()

	if err := ops.checkTarget(ctx, s, id, patchID); err != nil {
		return result, err
	}
	current, err := ops.repo.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return result, badRequest(ops.kind, ReasonIDNotFound, "Entity not found")
	}
	if err != nil {
		return result, translateError(err)
	}
	if err := apply(current); err != nil {
		return result, err
	}
	if err := ops.validate(current, s.opts.limits()); err != nil {
		return result, err
	}
	return ops.overwrite(ctx, s, current)
}

// overwrite saves an existing entity and syncs it and its dependents.
func (ops entityOps[T]) overwrite(ctx context.Context, s *service, e T) (T, error) {
	var zero T
	deps, err := ops.dependentsOf(ctx, e.GetID())
	if err != nil {
		return zero, err
	}
	saved, err := ops.save(ctx, s, e)
	if errors.Is(err, ErrNotFound) {
		// Deleted between the existence check and the write.
		return zero, badRequest(ops.kind, ReasonIDNotFound, "Entity not found")
	}
	if err != nil {
		return zero, err
	}
	s.dispatch(ctx, append(refs(ops.kind, saved.GetID()), refs(store.KindPost, deps...)...)...)

	result := ops.reload(ctx, s, saved)
	return result, s.publishUpdated(ctx, ops.kind, saved.GetID())
}

// save runs the save hooks around the primary write.
func (ops entityOps[T]) save(ctx context.Context, s *service, e T) (T, error) {
	var zero T
	if err := s.plugins.beforeSave(ctx, ops.kind, e); err != nil {
		return zero, err
	}
	saved, err := ops.repo.Save(ctx, e)
	if err != nil {
		return zero, translateError(referenceError(ops.kind, err))
	}
	s.plugins.afterSave(ctx, ops.kind, saved)
	return saved, nil
}

// reload returns the eager form of a saved entity. The write has committed,
// so a failed read falls back to the saved value.
func (ops entityOps[T]) reload(ctx context.Context, s *service, saved T) T {
	e, err := ops.load(ctx, saved.GetID())
	if err != nil {
		s.logger.Warn("reload after save failed",
			"kind", ops.kind, "id", saved.GetID(), "error", err)
		return saved
	}
	return e
}

func (ops entityOps[T]) delete(ctx context.Context, s *service, id int64) (err error) {
	if err := s.checkConnected(); err != nil {
		return err
	}
	ctx, done := s.otel.track(ctx, opDelete, ops.kind)
	defer func() { done(err) }()

	if err := s.plugins.beforeDelete(ctx, ops.kind, id); err != nil {
		return err
	}
	deps, err := ops.dependentsOf(ctx, id)
	if err != nil {
		return err
	}

	err = ops.repo.Delete(ctx, id)
	missing := errors.Is(err, store.ErrNotFound)
	if err != nil && !missing {
		return translateError(err)
	}
	// A missing row still syncs, so a stale document is removed.
	s.dispatch(ctx, append(refs(ops.kind, id), refs(store.KindPost, deps...)...)...)
	if missing {
		return nil
	}
	return s.publishDeleted(ctx, ops.kind, id)
}

func (ops entityOps[T]) dependentsOf(ctx context.Context, id int64) ([]int64, error) {
	if ops.dependents == nil {
		return nil, nil
	}
	ids, err := ops.dependents(ctx, id)
	if err != nil {
		return nil, translateError(err)
	}
	return ids, nil
}

func (ops entityOps[T]) count(ctx context.Context, s *service) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	n, err := ops.repo.Count(ctx)
	return n, translateError(err)
}
