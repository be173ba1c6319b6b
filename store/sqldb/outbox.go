package sqldb

import (
	"context"
	"fmt"
	"time"

	"github.com/rbaliyan/blog/store"
)

type outbox struct {
	s *Store
}

type taskRow struct {
	Seq       int64     `db:"seq"`
	ID        string    `db:"id"`
	Kind      string    `db:"kind"`
	EntityID  int64     `db:"entity_id"`
	Op        string    `db:"op"`
	Attempts  int       `db:"attempts"`
	LastError string    `db:"last_error"`
	CreatedAt time.Time `db:"created_at"`
}

func (r taskRow) toTask() store.IndexTask {
	return store.IndexTask{
		ID:        r.ID,
		Seq:       r.Seq,
		Kind:      store.Kind(r.Kind),
		EntityID:  r.EntityID,
		Op:        store.IndexOp(r.Op),
		Attempts:  r.Attempts,
		LastError: r.LastError,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

// Pending returns the latest task of each entity, ordered by the entity's
// oldest pending task.
func (o *outbox) Pending(ctx context.Context, limit int) ([]store.IndexTask, error) {
	if err := o.s.checkConnected(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, o.s.opts.timeout)
	defer cancel()

	q := fmt.Sprintf(`SELECT o.seq, o.id, o.kind, o.entity_id, o.op, o.attempts, o.last_error, o.created_at
		FROM %[1]s o
		JOIN (SELECT kind, entity_id, MAX(seq) AS last_seq, MIN(seq) AS first_seq
			FROM %[1]s GROUP BY kind, entity_id) l ON l.last_seq = o.seq
		ORDER BY l.first_seq`, o.s.tables.outbox)
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []taskRow
	if err := o.s.db.SelectContext(ctx, &rows, o.s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("pending index tasks: %w", err)
	}
	tasks := make([]store.IndexTask, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, row.toTask())
	}
	return tasks, nil
}

func (o *outbox) LatestSeq(ctx context.Context, kind store.Kind, id int64) (int64, error) {
	if err := o.s.checkConnected(); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, o.s.opts.timeout)
	defer cancel()

	var seq int64
	q := fmt.Sprintf(`SELECT COALESCE(MAX(seq), 0) FROM %s WHERE kind = ? AND entity_id = ?`, o.s.tables.outbox)
	if err := o.s.db.GetContext(ctx, &seq, o.s.db.Rebind(q), string(kind), id); err != nil {
		return 0, fmt.Errorf("latest index task: %w", err)
	}
	return seq, nil
}

func (o *outbox) Ack(ctx context.Context, kind store.Kind, id int64, seq int64) error {
	if err := o.s.checkConnected(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, o.s.opts.timeout)
	defer cancel()

	q := fmt.Sprintf(`DELETE FROM %s WHERE kind = ? AND entity_id = ? AND seq <= ?`, o.s.tables.outbox)
	if _, err := o.s.db.ExecContext(ctx, o.s.db.Rebind(q), string(kind), id, seq); err != nil {
		return fmt.Errorf("ack index tasks: %w", err)
	}
	return nil
}

func (o *outbox) Fail(ctx context.Context, kind store.Kind, id int64, cause error) error {
	if err := o.s.checkConnected(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, o.s.opts.timeout)
	defer cancel()

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	q := fmt.Sprintf(`UPDATE %s SET attempts = attempts + 1, last_error = ? WHERE kind = ? AND entity_id = ?`, o.s.tables.outbox)
	if _, err := o.s.db.ExecContext(ctx, o.s.db.Rebind(q), msg, string(kind), id); err != nil {
		return fmt.Errorf("fail index tasks: %w", err)
	}
	return nil
}

func (o *outbox) PendingCount(ctx context.Context) (int64, error) {
	if err := o.s.checkConnected(); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, o.s.opts.timeout)
	defer cancel()
	return count(ctx, o.s.db, o.s.tables.outbox)
}
