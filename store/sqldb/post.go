package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rbaliyan/blog/store"
)

type postRepo struct {
	s *Store
}

// postRow is a post row, optionally joined with its mode.
type postRow struct {
	ID         int64          `db:"id"`
	Title      string         `db:"title"`
	Content    string         `db:"content"`
	Date       time.Time      `db:"post_date"`
	ModeID     sql.NullInt64  `db:"mode_id"`
	ModeName   sql.NullString `db:"mode_name"`
	ModeHandle sql.NullString `db:"mode_handle"`
	ModeUserID sql.NullInt64  `db:"mode_user_id"`
}

func (r postRow) toPost() *store.Post {
	p := &store.Post{
		ID:      r.ID,
		Title:   r.Title,
		Content: r.Content,
		Date:    r.Date.UTC(),
		Tags:    []*store.Tag{},
	}
	if r.ModeID.Valid {
		p.Mode = &store.Mode{ID: r.ModeID.Int64, Name: r.ModeName.String, Handle: r.ModeHandle.String}
		if r.ModeUserID.Valid {
			p.Mode.User = &store.User{ID: r.ModeUserID.Int64}
		}
	}
	return p
}

// postTagRow is one membership from the join table, with the tag name when
// the tag table is joined.
type postTagRow struct {
	PostID  int64          `db:"post_id"`
	TagID   int64          `db:"tags_id"`
	TagName sql.NullString `db:"tag_name"`
}

func (r *postRepo) selectLazy() string {
	return fmt.Sprintf(`SELECT p.id, p.title, p.content, p.post_date, p.mode_id FROM %s p`, r.s.tables.posts)
}

func (r *postRepo) selectEager() string {
	t := r.s.tables
	return fmt.Sprintf(`SELECT p.id, p.title, p.content, p.post_date, p.mode_id,
		m.name AS mode_name, m.handle AS mode_handle, m.user_id AS mode_user_id
		FROM %s p LEFT JOIN %s m ON m.id = p.mode_id`, t.posts, t.modes)
}

func (r *postRepo) Save(ctx context.Context, p *store.Post) (*store.Post, error) {
	if err := r.s.checkConnected(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.s.opts.timeout)
	defer cancel()

	saved := p.Clone()
	saved.Date = saved.Date.UTC()
	if saved.Mode != nil {
		saved.Mode = &store.Mode{ID: saved.Mode.ID}
	}
	tags := store.NormalizeTags(saved.Tags)
	saved.Tags = make([]*store.Tag, 0, len(tags))
	for _, tag := range tags {
		saved.Tags = append(saved.Tags, &store.Tag{ID: tag.ID})
	}
	t := r.s.tables

	err := r.s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := r.checkReferences(ctx, tx, saved); err != nil {
			return err
		}

		modeID := nullID(saved.Mode.GetID())
		if saved.ID == 0 {
			q := fmt.Sprintf(`INSERT INTO %s (title, content, post_date, mode_id) VALUES (?, ?, ?, ?) RETURNING id`, t.posts)
			if err := tx.QueryRowxContext(ctx, tx.Rebind(q), saved.Title, saved.Content, saved.Date, modeID).Scan(&saved.ID); err != nil {
				return fmt.Errorf("insert post: %w", err)
			}
		} else {
			q := fmt.Sprintf(`UPDATE %s SET title = ?, content = ?, post_date = ?, mode_id = ? WHERE id = ?`, t.posts)
			res, err := tx.ExecContext(ctx, tx.Rebind(q), saved.Title, saved.Content, saved.Date, modeID, saved.ID)
			if err != nil {
				return fmt.Errorf("update post: %w", err)
			}
			if err := rowsAffected(res); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, tx.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE post_id = ?`, t.postTags)), saved.ID); err != nil {
				return fmt.Errorf("clear post tags: %w", err)
			}
		}

		insertTag := tx.Rebind(fmt.Sprintf(`INSERT INTO %s (post_id, tags_id) VALUES (?, ?)`, t.postTags))
		for _, tag := range saved.Tags {
			if _, err := tx.ExecContext(ctx, insertTag, saved.ID, tag.ID); err != nil {
				return fmt.Errorf("insert post tag: %w", err)
			}
		}
		return r.s.enqueue(ctx, tx, store.KindPost, saved.ID, store.OpIndex)
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// checkReferences verifies that the post's mode and tags exist.
func (r *postRepo) checkReferences(ctx context.Context, tx *sqlx.Tx, p *store.Post) error {
	t := r.s.tables
	if p.Mode != nil {
		ok, err := exists(ctx, tx, t.modes, p.Mode.ID)
		if err != nil {
			return fmt.Errorf("check mode: %w", err)
		}
		if !ok {
			return &store.ReferenceError{Field: "mode", Kind: store.KindMode, ID: p.Mode.ID}
		}
	}
	if len(p.Tags) == 0 {
		return nil
	}

	q, args, err := sqlx.In(fmt.Sprintf(`SELECT id FROM %s WHERE id IN (?)`, t.tags), p.TagIDs())
	if err != nil {
		return fmt.Errorf("build tag check: %w", err)
	}
	found, err := selectIDs(ctx, tx, q, args...)
	if err != nil {
		return fmt.Errorf("check tags: %w", err)
	}
	known := make(map[int64]bool, len(found))
	for _, id := range found {
		known[id] = true
	}
	for _, tag := range p.Tags {
		if !known[tag.ID] {
			return &store.ReferenceError{Field: "tags", Kind: store.KindTag, ID: tag.ID}
		}
	}
	return nil
}

func (r *postRepo) Get(ctx context.Context, id int64) (*store.Post, error) {
	return r.get(ctx, r.selectLazy(), id, false)
}

func (r *postRepo) GetWithRelations(ctx context.Context, id int64) (*store.Post, error) {
	return r.get(ctx, r.selectEager(), id, true)
}

func (r *postRepo) get(ctx context.Context, base string, id int64, eager bool) (*store.Post, error) {
	if err := r.s.checkConnected(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.s.opts.timeout)
	defer cancel()

	var row postRow
	if err := r.s.db.GetContext(ctx, &row, r.s.db.Rebind(base+` WHERE p.id = ?`), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get post: %w", err)
	}
	posts := []*store.Post{row.toPost()}
	if err := r.fetchTags(ctx, posts, eager); err != nil {
		return nil, err
	}
	return posts[0], nil
}

// fetchTags loads the tag bag for the given posts with one query keyed by
// their ids and merges the result in memory. With eager set the tag rows are
// joined for their names; otherwise only the identifiers are returned.
func (r *postRepo) fetchTags(ctx context.Context, posts []*store.Post, eager bool) error {
	if len(posts) == 0 {
		return nil
	}
	byID := make(map[int64]*store.Post, len(posts))
	ids := make([]int64, 0, len(posts))
	for _, p := range posts {
		byID[p.ID] = p
		ids = append(ids, p.ID)
	}

	t := r.s.tables
	base := fmt.Sprintf(`SELECT pt.post_id, pt.tags_id FROM %s pt WHERE pt.post_id IN (?) ORDER BY pt.tags_id`, t.postTags)
	if eager {
		base = fmt.Sprintf(`SELECT pt.post_id, pt.tags_id, tg.name AS tag_name
			FROM %s pt JOIN %s tg ON tg.id = pt.tags_id
			WHERE pt.post_id IN (?) ORDER BY pt.tags_id`, t.postTags, t.tags)
	}
	q, args, err := sqlx.In(base, ids)
	if err != nil {
		return fmt.Errorf("build tag query: %w", err)
	}

	var rows []postTagRow
	if err := r.s.db.SelectContext(ctx, &rows, r.s.db.Rebind(q), args...); err != nil {
		return fmt.Errorf("fetch post tags: %w", err)
	}
	for _, row := range rows {
		if p, ok := byID[row.PostID]; ok {
			p.Tags = append(p.Tags, &store.Tag{ID: row.TagID, Name: row.TagName.String})
		}
	}
	return nil
}

func (r *postRepo) Exists(ctx context.Context, id int64) (bool, error) {
	if err := r.s.checkConnected(); err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.s.opts.timeout)
	defer cancel()
	return exists(ctx, r.s.db, r.s.tables.posts, id)
}

func (r *postRepo) Delete(ctx context.Context, id int64) error {
	if err := r.s.checkConnected(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, r.s.opts.timeout)
	defer cancel()

	t := r.s.tables
	return r.s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, tx.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE post_id = ?`, t.postTags)), id); err != nil {
			return fmt.Errorf("delete post tags: %w", err)
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, t.posts)), id)
		if err != nil {
			return fmt.Errorf("delete post: %w", err)
		}
		if err := rowsAffected(res); err != nil {
			return err
		}
		return r.s.enqueue(ctx, tx, store.KindPost, id, store.OpDelete)
	})
}

func (r *postRepo) Count(ctx context.Context) (int64, error) {
	if err := r.s.checkConnected(); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.s.opts.timeout)
	defer cancel()
	return count(ctx, r.s.db, r.s.tables.posts)
}

func (r *postRepo) FindAll(ctx context.Context, req store.PageRequest) (*store.Page[*store.Post], error) {
	return r.findAll(ctx, r.selectLazy(), req, false)
}

func (r *postRepo) FindAllWithRelations(ctx context.Context, req store.PageRequest) (*store.Page[*store.Post], error) {
	return r.findAll(ctx, r.selectEager(), req, true)
}

func (r *postRepo) findAll(ctx context.Context, base string, req store.PageRequest, eager bool) (*store.Page[*store.Post], error) {
	if err := r.s.checkConnected(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.s.opts.timeout)
	defer cancel()

	order, err := orderBy(store.KindPost, req.Sort)
	if err != nil {
		return nil, err
	}
	paging, args := limitOffset(req)

	var rows []postRow
	if err := r.s.db.SelectContext(ctx, &rows, r.s.db.Rebind(base+order+paging), args...); err != nil {
		return nil, fmt.Errorf("find posts: %w", err)
	}
	items := make([]*store.Post, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toPost())
	}
	if err := r.fetchTags(ctx, items, eager); err != nil {
		return nil, err
	}
	total, err := count(ctx, r.s.db, r.s.tables.posts)
	if err != nil {
		return nil, err
	}
	return store.NewPage(items, total, req), nil
}

func (r *postRepo) IDsByMode(ctx context.Context, modeID int64) ([]int64, error) {
	if err := r.s.checkConnected(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.s.opts.timeout)
	defer cancel()
	return selectIDs(ctx, r.s.db, fmt.Sprintf(`SELECT id FROM %s WHERE mode_id = ? ORDER BY id`, r.s.tables.posts), modeID)
}

func (r *postRepo) IDsByTag(ctx context.Context, tagID int64) ([]int64, error) {
	if err := r.s.checkConnected(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.s.opts.timeout)
	defer cancel()
	return selectIDs(ctx, r.s.db, fmt.Sprintf(`SELECT post_id FROM %s WHERE tags_id = ? ORDER BY post_id`, r.s.tables.postTags), tagID)
}
