package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rbaliyan/blog/store"
)

type modeRepo struct {
	s *Store
}

// modeRow is a mode row, optionally joined with its owner.
type modeRow struct {
	ID        int64          `db:"id"`
	Name      string         `db:"name"`
	Handle    string         `db:"handle"`
	UserID    sql.NullInt64  `db:"user_id"`
	UserLogin sql.NullString `db:"user_login"`
}

func (r modeRow) toMode() *store.Mode {
	m := &store.Mode{ID: r.ID, Name: r.Name, Handle: r.Handle}
	if r.UserID.Valid {
		m.User = &store.User{ID: r.UserID.Int64, Login: r.UserLogin.String}
	}
	return m
}

func (r *modeRepo) selectLazy() string {
	return fmt.Sprintf(`SELECT m.id, m.name, m.handle, m.user_id FROM %s m`, r.s.tables.modes)
}

func (r *modeRepo) selectEager() string {
	t := r.s.tables
	return fmt.Sprintf(`SELECT m.id, m.name, m.handle, m.user_id, u.login AS user_login
		FROM %s m LEFT JOIN %s u ON u.id = m.user_id`, t.modes, t.users)
}

func (r *modeRepo) Save(ctx context.Context, m *store.Mode) (*store.Mode, error) {
	if err := r.s.checkConnected(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.s.opts.timeout)
	defer cancel()

	saved := m.Clone()
	if saved.User != nil {
		saved.User = &store.User{ID: saved.User.ID}
	}
	t := r.s.tables

	err := r.s.withTx(ctx, func(tx *sqlx.Tx) error {
		if saved.User != nil {
			ok, err := exists(ctx, tx, t.users, saved.User.ID)
			if err != nil {
				return fmt.Errorf("check user: %w", err)
			}
			if !ok {
				return &store.ReferenceError{Field: "user", Kind: store.KindUser, ID: saved.User.ID}
			}
		}

		userID := nullID(saved.User.GetID())
		if saved.ID == 0 {
			q := fmt.Sprintf(`INSERT INTO %s (name, handle, user_id) VALUES (?, ?, ?) RETURNING id`, t.modes)
			if err := tx.QueryRowxContext(ctx, tx.Rebind(q), saved.Name, saved.Handle, userID).Scan(&saved.ID); err != nil {
				return fmt.Errorf("insert mode: %w", err)
			}
			return r.s.enqueue(ctx, tx, store.KindMode, saved.ID, store.OpIndex)
		}

		q := fmt.Sprintf(`UPDATE %s SET name = ?, handle = ?, user_id = ? WHERE id = ?`, t.modes)
		res, err := tx.ExecContext(ctx, tx.Rebind(q), saved.Name, saved.Handle, userID, saved.ID)
		if err != nil {
			return fmt.Errorf("update mode: %w", err)
		}
		if err := rowsAffected(res); err != nil {
			return err
		}
		if err := r.s.enqueue(ctx, tx, store.KindMode, saved.ID, store.OpIndex); err != nil {
			return err
		}
		// Posts embed the mode in their index documents.
		postIDs, err := selectIDs(ctx, tx, fmt.Sprintf(`SELECT id FROM %s WHERE mode_id = ? ORDER BY id`, t.posts), saved.ID)
		if err != nil {
			return fmt.Errorf("find posts of mode: %w", err)
		}
		return r.s.enqueueAll(ctx, tx, store.KindPost, postIDs, store.OpIndex)
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (r *modeRepo) Get(ctx context.Context, id int64) (*store.Mode, error) {
	return r.get(ctx, r.selectLazy(), id)
}

func (r *modeRepo) GetWithUser(ctx context.Context, id int64) (*store.Mode, error) {
	return r.get(ctx, r.selectEager(), id)
}

func (r *modeRepo) get(ctx context.Context, base string, id int64) (*store.Mode, error) {
	if err := r.s.checkConnected(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.s.opts.timeout)
	defer cancel()

	var row modeRow
	if err := r.s.db.GetContext(ctx, &row, r.s.db.Rebind(base+` WHERE m.id = ?`), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get mode: %w", err)
	}
	return row.toMode(), nil
}

func (r *modeRepo) Exists(ctx context.Context, id int64) (bool, error) {
	if err := r.s.checkConnected(); err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.s.opts.timeout)
	defer cancel()
	return exists(ctx, r.s.db, r.s.tables.modes, id)
}

func (r *modeRepo) Delete(ctx context.Context, id int64) error {
	if err := r.s.checkConnected(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, r.s.opts.timeout)
	defer cancel()

	t := r.s.tables
	return r.s.withTx(ctx, func(tx *sqlx.Tx) error {
		postIDs, err := selectIDs(ctx, tx, fmt.Sprintf(`SELECT id FROM %s WHERE mode_id = ? ORDER BY id`, t.posts), id)
		if err != nil {
			return fmt.Errorf("find posts of mode: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(fmt.Sprintf(`UPDATE %s SET mode_id = NULL WHERE mode_id = ?`, t.posts)), id); err != nil {
			return fmt.Errorf("detach posts: %w", err)
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, t.modes)), id)
		if err != nil {
			return fmt.Errorf("delete mode: %w", err)
		}
		if err := rowsAffected(res); err != nil {
			return err
		}
		if err := r.s.enqueue(ctx, tx, store.KindMode, id, store.OpDelete); err != nil {
			return err
		}
		return r.s.enqueueAll(ctx, tx, store.KindPost, postIDs, store.OpIndex)
	})
}

func (r *modeRepo) Count(ctx context.Context) (int64, error) {
	if err := r.s.checkConnected(); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.s.opts.timeout)
	defer cancel()
	return count(ctx, r.s.db, r.s.tables.modes)
}

func (r *modeRepo) FindAll(ctx context.Context, req store.PageRequest) (*store.Page[*store.Mode], error) {
	return r.findAll(ctx, r.selectLazy(), req)
}

func (r *modeRepo) FindAllWithUser(ctx context.Context, req store.PageRequest) (*store.Page[*store.Mode], error) {
	return r.findAll(ctx, r.selectEager(), req)
}

func (r *modeRepo) findAll(ctx context.Context, base string, req store.PageRequest) (*store.Page[*store.Mode], error) {
	if err := r.s.checkConnected(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.s.opts.timeout)
	defer cancel()

	order, err := orderBy(store.KindMode, req.Sort)
	if err != nil {
		return nil, err
	}
	paging, args := limitOffset(req)

	var rows []modeRow
	if err := r.s.db.SelectContext(ctx, &rows, r.s.db.Rebind(base+order+paging), args...); err != nil {
		return nil, fmt.Errorf("find modes: %w", err)
	}
	total, err := count(ctx, r.s.db, r.s.tables.modes)
	if err != nil {
		return nil, err
	}
	items := make([]*store.Mode, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toMode())
	}
	return store.NewPage(items, total, req), nil
}
