package memory

import (
	"context"

	"github.com/rbaliyan/blog/store"
)

// =============================================================================
// Users
// =============================================================================

type userRepo struct {
	s *Store
}

func (r *userRepo) Save(ctx context.Context, u *store.User) (*store.User, error) {
	if err := r.s.checkConnected(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c := u.Clone()
	if c.ID == 0 {
		c.ID = r.s.nextID(store.KindUser)
	} else if _, ok := r.s.users[c.ID]; !ok {
		return nil, store.ErrNotFound
	}
	r.s.users[c.ID] = c
	return c.Clone(), nil
}

func (r *userRepo) Get(ctx context.Context, id int64) (*store.User, error) {
	if err := r.s.checkConnected(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u.Clone(), nil
}

func (r *userRepo) Exists(ctx context.Context, id int64) (bool, error) {
	if err := r.s.checkConnected(); err != nil {
		return false, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.users[id]
	return ok, nil
}

func (r *userRepo) Delete(ctx context.Context, id int64) error {
	if err := r.s.checkConnected(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.s.users, id)
	for _, m := range r.s.modes {
		if m.User.GetID() == id {
			m.User = nil
			r.s.enqueue(store.KindMode, m.ID, store.OpIndex)
		}
	}
	return nil
}

func (r *userRepo) Count(ctx context.Context) (int64, error) {
	if err := r.s.checkConnected(); err != nil {
		return 0, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return int64(len(r.s.users)), nil
}

func (r *userRepo) FindAll(ctx context.Context, req store.PageRequest) (*store.Page[*store.User], error) {
	if err := r.s.checkConnected(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	items := make([]*store.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		items = append(items, u.Clone())
	}
	r.s.mu.RUnlock()
	return paginate(store.KindUser, items, req, userField)
}

// =============================================================================
// Modes
// =============================================================================

type modeRepo struct {
	s *Store
}

func (r *modeRepo) Save(ctx context.Context, m *store.Mode) (*store.Mode, error) {
	if err := r.s.checkConnected(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c := m.Clone()
	if c.User != nil {
		if _, ok := r.s.users[c.User.ID]; !ok {
			return nil, &store.ReferenceError{Field: "user", Kind: store.KindUser, ID: c.User.ID}
		}
		c.User = &store.User{ID: c.User.ID}
	}

	created := c.ID == 0
	if created {
		c.ID = r.s.nextID(store.KindMode)
	} else if _, ok := r.s.modes[c.ID]; !ok {
		return nil, store.ErrNotFound
	}
	r.s.modes[c.ID] = c
	r.s.enqueue(store.KindMode, c.ID, store.OpIndex)
	if !created {
		for _, pid := range r.s.postsReferencing(store.KindMode, c.ID) {
			r.s.enqueue(store.KindPost, pid, store.OpIndex)
		}
	}
	return c.Clone(), nil
}

func (r *modeRepo) Get(ctx context.Context, id int64) (*store.Mode, error) {
	if err := r.s.checkConnected(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	m, ok := r.s.modes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return m.Clone(), nil
}

func (r *modeRepo) GetWithUser(ctx context.Context, id int64) (*store.Mode, error) {
	if err := r.s.checkConnected(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	m, ok := r.s.modes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return r.withUser(m), nil
}

// withUser returns a copy of m with the user resolved. Caller must hold s.mu.
func (r *modeRepo) withUser(m *store.Mode) *store.Mode {
	c := m.Clone()
	if c.User != nil {
		if u, ok := r.s.users[c.User.ID]; ok {
			c.User = u.Clone()
		}
	}
	return c
}

func (r *modeRepo) Exists(ctx context.Context, id int64) (bool, error) {
	if err := r.s.checkConnected(); err != nil {
		return false, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.modes[id]
	return ok, nil
}

func (r *modeRepo) Delete(ctx context.Context, id int64) error {
	if err := r.s.checkConnected(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.modes[id]; !ok {
		return store.ErrNotFound
	}
	for _, pid := range r.s.postsReferencing(store.KindMode, id) {
		r.s.posts[pid].Mode = nil
		r.s.enqueue(store.KindPost, pid, store.OpIndex)
	}
	delete(r.s.modes, id)
	r.s.enqueue(store.KindMode, id, store.OpDelete)
	return nil
}

func (r *modeRepo) Count(ctx context.Context) (int64, error) {
	if err := r.s.checkConnected(); err != nil {
		return 0, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return int64(len(r.s.modes)), nil
}

func (r *modeRepo) FindAll(ctx context.Context, req store.PageRequest) (*store.Page[*store.Mode], error) {
	return r.findAll(req, false)
}

func (r *modeRepo) FindAllWithUser(ctx context.Context, req store.PageRequest) (*store.Page[*store.Mode], error) {
	return r.findAll(req, true)
}

func (r *modeRepo) findAll(req store.PageRequest, eager bool) (*store.Page[*store.Mode], error) {
	if err := r.s.checkConnected(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	items := make([]*store.Mode, 0, len(r.s.modes))
	for _, m := range r.s.modes {
		if eager {
			items = append(items, r.withUser(m))
		} else {
			items = append(items, m.Clone())
		}
	}
	r.s.mu.RUnlock()
	return paginate(store.KindMode, items, req, modeField)
}

// =============================================================================
// Posts
// =============================================================================

type postRepo struct {
	s *Store
}

func (r *postRepo) Save(ctx context.Context, p *store.Post) (*store.Post, error) {
	if err := r.s.checkConnected(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c := p.Clone()
	c.Date = c.Date.UTC()
	if c.Mode != nil {
		if _, ok := r.s.modes[c.Mode.ID]; !ok {
			return nil, &store.ReferenceError{Field: "mode", Kind: store.KindMode, ID: c.Mode.ID}
		}
		c.Mode = &store.Mode{ID: c.Mode.ID}
	}
	tags := store.NormalizeTags(c.Tags)
	c.Tags = make([]*store.Tag, 0, len(tags))
	for _, t := range tags {
		if _, ok := r.s.tags[t.ID]; !ok {
			return nil, &store.ReferenceError{Field: "tags", Kind: store.KindTag, ID: t.ID}
		}
		c.Tags = append(c.Tags, &store.Tag{ID: t.ID})
	}

	if c.ID == 0 {
		c.ID = r.s.nextID(store.KindPost)
	} else if _, ok := r.s.posts[c.ID]; !ok {
		return nil, store.ErrNotFound
	}
	r.s.posts[c.ID] = c
	r.s.enqueue(store.KindPost, c.ID, store.OpIndex)
	return c.Clone(), nil
}

func (r *postRepo) Get(ctx context.Context, id int64) (*store.Post, error) {
	if err := r.s.checkConnected(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.posts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *postRepo) GetWithRelations(ctx context.Context, id int64) (*store.Post, error) {
	if err := r.s.checkConnected(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.posts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return r.withRelations(p), nil
}

// withRelations returns a copy of p with mode and tags resolved.
// Caller must hold s.mu.
func (r *postRepo) withRelations(p *store.Post) *store.Post {
	c := p.Clone()
	if c.Mode != nil {
		if m, ok := r.s.modes[c.Mode.ID]; ok {
			c.Mode = m.Clone()
		}
	}
	for i, t := range c.Tags {
		if full, ok := r.s.tags[t.ID]; ok {
			c.Tags[i] = full.Clone()
		}
	}
	return c
}

func (r *postRepo) Exists(ctx context.Context, id int64) (bool, error) {
	if err := r.s.checkConnected(); err != nil {
		return false, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.posts[id]
	return ok, nil
}

func (r *postRepo) Delete(ctx context.Context, id int64) error {
	if err := r.s.checkConnected(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.posts[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.s.posts, id)
	r.s.enqueue(store.KindPost, id, store.OpDelete)
	return nil
}

func (r *postRepo) Count(ctx context.Context) (int64, error) {
	if err := r.s.checkConnected(); err != nil {
		return 0, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return int64(len(r.s.posts)), nil
}

func (r *postRepo) FindAll(ctx context.Context, req store.PageRequest) (*store.Page[*store.Post], error) {
	return r.findAll(req, false)
}

func (r *postRepo) FindAllWithRelations(ctx context.Context, req store.PageRequest) (*store.Page[*store.Post], error) {
	return r.findAll(req, true)
}

func (r *postRepo) findAll(req store.PageRequest, eager bool) (*store.Page[*store.Post], error) {
	if err := r.s.checkConnected(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	items := make([]*store.Post, 0, len(r.s.posts))
	for _, p := range r.s.posts {
		if eager {
			items = append(items, r.withRelations(p))
		} else {
			items = append(items, p.Clone())
		}
	}
	r.s.mu.RUnlock()
	return paginate(store.KindPost, items, req, postField)
}

func (r *postRepo) IDsByMode(ctx context.Context, modeID int64) ([]int64, error) {
	if err := r.s.checkConnected(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.postsReferencing(store.KindMode, modeID), nil
}

func (r *postRepo) IDsByTag(ctx context.Context, tagID int64) ([]int64, error) {
	if err := r.s.checkConnected(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.postsReferencing(store.KindTag, tagID), nil
}

// =============================================================================
// Tags
// =============================================================================

type tagRepo struct {
	s *Store
}

func (r *tagRepo) Save(ctx context.Context, t *store.Tag) (*store.Tag, error) {
	if err := r.s.checkConnected(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c := t.Clone()
	created := c.ID == 0
	if created {
		c.ID = r.s.nextID(store.KindTag)
	} else if _, ok := r.s.tags[c.ID]; !ok {
		return nil, store.ErrNotFound
	}
	r.s.tags[c.ID] = c
	r.s.enqueue(store.KindTag, c.ID, store.OpIndex)
	if !created {
		for _, pid := range r.s.postsReferencing(store.KindTag, c.ID) {
			r.s.enqueue(store.KindPost, pid, store.OpIndex)
		}
	}
	return c.Clone(), nil
}

func (r *tagRepo) Get(ctx context.Context, id int64) (*store.Tag, error) {
	if err := r.s.checkConnected(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	t, ok := r.s.tags[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return t.Clone(), nil
}

func (r *tagRepo) Exists(ctx context.Context, id int64) (bool, error) {
	if err := r.s.checkConnected(); err != nil {
		return false, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.tags[id]
	return ok, nil
}

func (r *tagRepo) Delete(ctx context.Context, id int64) error {
	if err := r.s.checkConnected(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.tags[id]; !ok {
		return store.ErrNotFound
	}
	for _, pid := range r.s.postsReferencing(store.KindTag, id) {
		p := r.s.posts[pid]
		p.RemoveTag(&store.Tag{ID: id})
		r.s.enqueue(store.KindPost, pid, store.OpIndex)
	}
	delete(r.s.tags, id)
	r.s.enqueue(store.KindTag, id, store.OpDelete)
	return nil
}

func (r *tagRepo) Count(ctx context.Context) (int64, error) {
	if err := r.s.checkConnected(); err != nil {
		return 0, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return int64(len(r.s.tags)), nil
}

func (r *tagRepo) FindAll(ctx context.Context, req store.PageRequest) (*store.Page[*store.Tag], error) {
	if err := r.s.checkConnected(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	items := make([]*store.Tag, 0, len(r.s.tags))
	for _, t := range r.s.tags {
		items = append(items, t.Clone())
	}
	r.s.mu.RUnlock()
	return paginate(store.KindTag, items, req, tagField)
}
