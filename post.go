package blog

import (
	"context"

	"github.com/rbaliyan/blog/search"
	"github.com/rbaliyan/blog/store"
)

// postClient implements PostClient.
type postClient struct {
	s *service
}

func (c *postClient) ops() entityOps[*store.Post] {
	repo := c.s.store.Posts()
	return entityOps[*store.Post]{
		kind:     store.KindPost,
		repo:     repo,
		load:     repo.GetWithRelations,
		validate: ValidatePost,
		clone:    (*store.Post).Clone,
	}
}

func (c *postClient) Create(ctx context.Context, p *store.Post) (*store.Post, error) {
	return c.ops().create(ctx, c.s, p)
}

func (c *postClient) Update(ctx context.Context, id int64, p *store.Post) (*store.Post, error) {
	return c.ops().update(ctx, c.s, id, p)
}

func (c *postClient) Patch(ctx context.Context, id int64, p PostPatch) (*store.Post, error) {
	return c.ops().patch(ctx, c.s, id, patchID(p.ID), p.Apply)
}

func (c *postClient) Get(ctx context.Context, id int64) (*store.Post, error) {
	return c.ops().get(ctx, c.s, id)
}

// List returns one page of posts. Tags of an eager page are fetched by a
// second query keyed by the page's ids, so paging counts posts.
func (c *postClient) List(ctx context.Context, req store.PageRequest, eager bool) (page *store.Page[*store.Post], err error) {
	if err := c.s.checkConnected(); err != nil {
		return nil, err
	}
	ctx, done := c.s.otel.track(ctx, opList, store.KindPost)
	defer func() { done(err) }()

	repo := c.s.store.Posts()
	if eager {
		page, err = repo.FindAllWithRelations(ctx, req)
	} else {
		page, err = repo.FindAll(ctx, req)
	}
	if err != nil {
		return nil, translateError(err)
	}
	return page, nil
}

func (c *postClient) Delete(ctx context.Context, id int64) error {
	return c.ops().delete(ctx, c.s, id)
}

func (c *postClient) Count(ctx context.Context) (int64, error) {
	return c.ops().count(ctx, c.s)
}

func (c *postClient) Search(ctx context.Context, query string, req store.PageRequest) (*store.Page[*store.Post], error) {
	if err := c.s.checkConnected(); err != nil {
		return nil, err
	}
	q, err := search.ParseQuery(store.KindPost, query)
	if err != nil {
		return nil, translateError(err)
	}
	return searchPage[store.Post](ctx, c.s, store.KindPost, q, req)
}
