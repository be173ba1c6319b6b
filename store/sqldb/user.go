package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rbaliyan/blog/store"
)

type userRepo struct {
	s *Store
}

type userRow struct {
	ID    int64  `db:"id"`
	Login string `db:"login"`
}

func (r userRow) toUser() *store.User {
	return &store.User{ID: r.ID, Login: r.Login}
}

func (r *userRepo) Save(ctx context.Context, u *store.User) (*store.User, error) {
	if err := r.s.checkConnected(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.s.opts.timeout)
	defer cancel()

	saved := u.Clone()
	t := r.s.tables
	err := r.s.withTx(ctx, func(tx *sqlx.Tx) error {
		if saved.ID == 0 {
			q := fmt.Sprintf(`INSERT INTO %s (login) VALUES (?) RETURNING id`, t.users)
			if err := tx.QueryRowxContext(ctx, tx.Rebind(q), saved.Login).Scan(&saved.ID); err != nil {
				return fmt.Errorf("insert user: %w", err)
			}
			return nil
		}
		q := fmt.Sprintf(`UPDATE %s SET login = ? WHERE id = ?`, t.users)
		res, err := tx.ExecContext(ctx, tx.Rebind(q), saved.Login, saved.ID)
		if err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		return rowsAffected(res)
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (r *userRepo) Get(ctx context.Context, id int64) (*store.User, error) {
	if err := r.s.checkConnected(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.s.opts.timeout)
	defer cancel()

	var row userRow
	q := fmt.Sprintf(`SELECT u.id, u.login FROM %s u WHERE u.id = ?`, r.s.tables.users)
	if err := r.s.db.GetContext(ctx, &row, r.s.db.Rebind(q), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return row.toUser(), nil
}

func (r *userRepo) Exists(ctx context.Context, id int64) (bool, error) {
	if err := r.s.checkConnected(); err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.s.opts.timeout)
	defer cancel()
	return exists(ctx, r.s.db, r.s.tables.users, id)
}

func (r *userRepo) Delete(ctx context.Context, id int64) error {
	if err := r.s.checkConnected(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, r.s.opts.timeout)
	defer cancel()

	t := r.s.tables
	return r.s.withTx(ctx, func(tx *sqlx.Tx) error {
		modeIDs, err := selectIDs(ctx, tx, fmt.Sprintf(`SELECT id FROM %s WHERE user_id = ? ORDER BY id`, t.modes), id)
		if err != nil {
			return fmt.Errorf("find owned modes: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(fmt.Sprintf(`UPDATE %s SET user_id = NULL WHERE user_id = ?`, t.modes)), id); err != nil {
			return fmt.Errorf("detach modes: %w", err)
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, t.users)), id)
		if err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		if err := rowsAffected(res); err != nil {
			return err
		}
		return r.s.enqueueAll(ctx, tx, store.KindMode, modeIDs, store.OpIndex)
	})
}

func (r *userRepo) Count(ctx context.Context) (int64, error) {
	if err := r.s.checkConnected(); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.s.opts.timeout)
	defer cancel()
	return count(ctx, r.s.db, r.s.tables.users)
}

func (r *userRepo) FindAll(ctx context.Context, req store.PageRequest) (*store.Page[*store.User], error) {
	if err := r.s.checkConnected(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.s.opts.timeout)
	defer cancel()

	order, err := orderBy(store.KindUser, req.Sort)
	if err != nil {
		return nil, err
	}
	paging, args := limitOffset(req)
	q := fmt.Sprintf(`SELECT u.id, u.login FROM %s u`, r.s.tables.users) + order + paging

	var rows []userRow
	if err := r.s.db.SelectContext(ctx, &rows, r.s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	total, err := count(ctx, r.s.db, r.s.tables.users)
	if err != nil {
		return nil, err
	}
	items := make([]*store.User, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toUser())
	}
	return store.NewPage(items, total, req), nil
}

func count(ctx context.Context, q sqlx.QueryerContext, table string) (int64, error) {
	var n int64
	if err := sqlx.GetContext(ctx, q, &n, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}
