package blog

import (
	"context"
	"iter"

	"github.com/rbaliyan/blog/search"
	"github.com/rbaliyan/blog/store"
)

// modeClient implements ModeClient.
type modeClient struct {
	s *service
}

func (c *modeClient) ops() entityOps[*store.Mode] {
	repo := c.s.store.Modes()
	return entityOps[*store.Mode]{
		kind:       store.KindMode,
		repo:       repo,
		load:       repo.GetWithUser,
		validate:   ValidateMode,
		clone:      (*store.Mode).Clone,
		dependents: c.s.store.Posts().IDsByMode,
	}
}

func (c *modeClient) Create(ctx context.Context, m *store.Mode) (*store.Mode, error) {
	return c.ops().create(ctx, c.s, m)
}

func (c *modeClient) Update(ctx context.Context, id int64, m *store.Mode) (*store.Mode, error) {
	return c.ops().update(ctx, c.s, id, m)
}

func (c *modeClient) Patch(ctx context.Context, id int64, p ModePatch) (*store.Mode, error) {
	return c.ops().patch(ctx, c.s, id, patchID(p.ID), p.Apply)
}

func (c *modeClient) Get(ctx context.Context, id int64) (*store.Mode, error) {
	return c.ops().get(ctx, c.s, id)
}

func (c *modeClient) List(ctx context.Context, eager bool) (modes []*store.Mode, err error) {
	if err := c.s.checkConnected(); err != nil {
		return nil, err
	}
	ctx, done := c.s.otel.track(ctx, opList, store.KindMode)
	defer func() { done(err) }()

	repo := c.s.store.Modes()
	var page *store.Page[*store.Mode]
	if eager {
		page, err = repo.FindAllWithUser(ctx, store.Unpaged())
	} else {
		page, err = repo.FindAll(ctx, store.Unpaged())
	}
	if err != nil {
		return nil, translateError(err)
	}
	return page.Items, nil
}

func (c *modeClient) Delete(ctx context.Context, id int64) error {
	return c.ops().delete(ctx, c.s, id)
}

func (c *modeClient) Count(ctx context.Context) (int64, error) {
	return c.ops().count(ctx, c.s)
}

// Search pages through the index in batches of WithSearchBatchSize and
// yields each mode. A parse or index error is yielded once and ends the
// sequence.
func (c *modeClient) Search(ctx context.Context, query string) iter.Seq2[*store.Mode, error] {
	return func(yield func(*store.Mode, error) bool) {
		if err := c.s.checkConnected(); err != nil {
			yield(nil, err)
			return
		}
		q, err := search.ParseQuery(store.KindMode, query)
		if err != nil {
			yield(nil, translateError(err))
			return
		}

		req := store.PageRequest{Size: c.s.opts.searchBatchSize}
		for {
			page, err := searchPage[store.Mode](ctx, c.s, store.KindMode, q, req)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, m := range page.Items {
				if !yield(m, nil) {
					return
				}
			}
			if !page.HasNext() {
				return
			}
			req = req.Next()
		}
	}
}

func (c *modeClient) SearchAll(ctx context.Context, query string) ([]*store.Mode, error) {
	var out []*store.Mode
	for m, err := range c.Search(ctx, query) {
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if out == nil {
		out = []*store.Mode{}
	}
	return out, nil
}

// searchPage runs one page of a parsed query and decodes the hits.
func searchPage[T any](ctx context.Context, s *service, kind store.Kind, q search.Query, req store.PageRequest) (page *store.Page[*T], err error) {
	ctx, done := s.otel.track(ctx, opSearch, kind)
	defer func() { done(err) }()

	res, err := s.index.Search(ctx, kind, q, req)
	if err != nil {
		return nil, translateError(err)
	}
	items, err := decodeHits[T](kind, res.Hits)
	if err != nil {
		return nil, err
	}
	return store.NewPage(items, res.Total, req), nil
}
