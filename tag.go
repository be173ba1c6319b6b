package blog

import (
	"context"

	"github.com/rbaliyan/blog/search"
	"github.com/rbaliyan/blog/store"
)

// tagClient implements TagClient.
type tagClient struct {
	s *service
}

func (c *tagClient) ops() entityOps[*store.Tag] {
	repo := c.s.store.Tags()
	return entityOps[*store.Tag]{
		kind:       store.KindTag,
		repo:       repo,
		load:       repo.Get,
		validate:   ValidateTag,
		clone:      (*store.Tag).Clone,
		dependents: c.s.store.Posts().IDsByTag,
	}
}

func (c *tagClient) Create(ctx context.Context, t *store.Tag) (*store.Tag, error) {
	return c.ops().create(ctx, c.s, t)
}

func (c *tagClient) Update(ctx context.Context, id int64, t *store.Tag) (*store.Tag, error) {
	return c.ops().update(ctx, c.s, id, t)
}

func (c *tagClient) Patch(ctx context.Context, id int64, p TagPatch) (*store.Tag, error) {
	return c.ops().patch(ctx, c.s, id, patchID(p.ID), p.Apply)
}

func (c *tagClient) Get(ctx context.Context, id int64) (*store.Tag, error) {
	return c.ops().get(ctx, c.s, id)
}

func (c *tagClient) List(ctx context.Context, req store.PageRequest) (page *store.Page[*store.Tag], err error) {
	if err := c.s.checkConnected(); err != nil {
		return nil, err
	}
	ctx, done := c.s.otel.track(ctx, opList, store.KindTag)
	defer func() { done(err) }()

	page, err = c.s.store.Tags().FindAll(ctx, req)
	if err != nil {
		return nil, translateError(err)
	}
	return page, nil
}

func (c *tagClient) Delete(ctx context.Context, id int64) error {
	return c.ops().delete(ctx, c.s, id)
}

func (c *tagClient) Count(ctx context.Context) (int64, error) {
	return c.ops().count(ctx, c.s)
}

func (c *tagClient) Search(ctx context.Context, query string, req store.PageRequest) (*store.Page[*store.Tag], error) {
	if err := c.s.checkConnected(); err != nil {
		return nil, err
	}
	q, err := search.ParseQuery(store.KindTag, query)
	if err != nil {
		return nil, translateError(err)
	}
	return searchPage[store.Tag](ctx, c.s, store.KindTag, q, req)
}
