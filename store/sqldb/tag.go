package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rbaliyan/blog/store"
)

type tagRepo struct {
	s *Store
}

type tagRow struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

func (r tagRow) toTag() *store.Tag {
	return &store.Tag{ID: r.ID, Name: r.Name}
}

func (r *tagRepo) Save(ctx context.Context, tag *store.Tag) (*store.Tag, error) {
	if err := r.s.checkConnected(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.s.opts.timeout)
	defer cancel()

	saved := tag.Clone()
	t := r.s.tables
	err := r.s.withTx(ctx, func(tx *sqlx.Tx) error {
		if saved.ID == 0 {
			q := fmt.Sprintf(`INSERT INTO %s (name) VALUES (?) RETURNING id`, t.tags)
			if err := tx.QueryRowxContext(ctx, tx.Rebind(q), saved.Name).Scan(&saved.ID); err != nil {
				return fmt.Errorf("insert tag: %w", err)
			}
			return r.s.enqueue(ctx, tx, store.KindTag, saved.ID, store.OpIndex)
		}

		q := fmt.Sprintf(`UPDATE %s SET name = ? WHERE id = ?`, t.tags)
		res, err := tx.ExecContext(ctx, tx.Rebind(q), saved.Name, saved.ID)
		if err != nil {
			return fmt.Errorf("update tag: %w", err)
		}
		if err := rowsAffected(res); err != nil {
			return err
		}
		if err := r.s.enqueue(ctx, tx, store.KindTag, saved.ID, store.OpIndex); err != nil {
			return err
		}
		// Posts embed tag names in their index documents.
		postIDs, err := selectIDs(ctx, tx, fmt.Sprintf(`SELECT post_id FROM %s WHERE tags_id = ? ORDER BY post_id`, t.postTags), saved.ID)
		if err != nil {
			return fmt.Errorf("find posts of tag: %w", err)
		}
		return r.s.enqueueAll(ctx, tx, store.KindPost, postIDs, store.OpIndex)
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (r *tagRepo) Get(ctx context.Context, id int64) (*store.Tag, error) {
	if err := r.s.checkConnected(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.s.opts.timeout)
	defer cancel()

	var row tagRow
	q := fmt.Sprintf(`SELECT t.id, t.name FROM %s t WHERE t.id = ?`, r.s.tables.tags)
	if err := r.s.db.GetContext(ctx, &row, r.s.db.Rebind(q), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get tag: %w", err)
	}
	return row.toTag(), nil
}

func (r *tagRepo) Exists(ctx context.Context, id int64) (bool, error) {
	if err := r.s.checkConnected(); err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.s.opts.timeout)
	defer cancel()
	return exists(ctx, r.s.db, r.s.tables.tags, id)
}

func (r *tagRepo) Delete(ctx context.Context, id int64) error {
	if err := r.s.checkConnected(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, r.s.opts.timeout)
	defer cancel()

	t := r.s.tables
	return r.s.withTx(ctx, func(tx *sqlx.Tx) error {
		postIDs, err := selectIDs(ctx, tx, fmt.Sprintf(`SELECT post_id FROM %s WHERE tags_id = ? ORDER BY post_id`, t.postTags), id)
		if err != nil {
			return fmt.Errorf("find posts of tag: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE tags_id = ?`, t.postTags)), id); err != nil {
			return fmt.Errorf("detach posts: %w", err)
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, t.tags)), id)
		if err != nil {
			return fmt.Errorf("delete tag: %w", err)
		}
		if err := rowsAffected(res); err != nil {
			return err
		}
		if err := r.s.enqueue(ctx, tx, store.KindTag, id, store.OpDelete); err != nil {
			return err
		}
		return r.s.enqueueAll(ctx, tx, store.KindPost, postIDs, store.OpIndex)
	})
}

func (r *tagRepo) Count(ctx context.Context) (int64, error) {
	if err := r.s.checkConnected(); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.s.opts.timeout)
	defer cancel()
	return count(ctx, r.s.db, r.s.tables.tags)
}

func (r *tagRepo) FindAll(ctx context.Context, req store.PageRequest) (*store.Page[*store.Tag], error) {
	if err := r.s.checkConnected(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.s.opts.timeout)
	defer cancel()

	order, err := orderBy(store.KindTag, req.Sort)
	if err != nil {
		return nil, err
	}
	paging, args := limitOffset(req)
	q := fmt.Sprintf(`SELECT t.id, t.name FROM %s t`, r.s.tables.tags) + order + paging

	var rows []tagRow
	if err := r.s.db.SelectContext(ctx, &rows, r.s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("find tags: %w", err)
	}
	total, err := count(ctx, r.s.db, r.s.tables.tags)
	if err != nil {
		return nil, err
	}
	items := make([]*store.Tag, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toTag())
	}
	return store.NewPage(items, total, req), nil
}
