// Package sqldb provides a relational implementation of store.Store on top of
// sqlx. PostgreSQL (github.com/lib/pq) and SQLite (github.com/mattn/go-sqlite3)
// are supported; the dialect is taken from the sqlx driver name.
//
// Queries are written with '?' placeholders and rebound for the driver.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rbaliyan/blog/store"
)

// Compile-time check
var _ store.Store = (*Store)(nil)

// Supported driver names.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Store implements store.Store using a SQL database.
type Store struct {
	db        *sqlx.DB
	dialect   dialect
	tables    tables
	opts      *options
	connected int32
	logger    *slog.Logger
}

// New creates a new SQL store with the provided database connection.
// Call Connect() to initialize the schema.
func New(db *sqlx.DB, opts ...Option) *Store {
	o := newOptions(opts...)
	s := &Store{
		db:     db,
		opts:   o,
		tables: newTables(o.prefix),
		logger: o.logger,
	}
	if db != nil {
		s.dialect = dialectFor(db.DriverName())
	}
	return s
}

// NewFromDB creates a new SQL store from a standard sql.DB connection.
// driverName must be DriverPostgres or DriverSQLite.
func NewFromDB(db *sql.DB, driverName string, opts ...Option) *Store {
	return New(sqlx.NewDb(db, driverName), opts...)
}

// Open opens a database with the given driver and DSN and wraps it in a Store.
// The caller owns the returned *sqlx.DB and must close it.
func Open(driverName, dsn string, opts ...Option) (*Store, *sqlx.DB, error) {
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	if driverName == DriverSQLite {
		// An in-memory SQLite database lives in a single connection.
		db.SetMaxOpenConns(1)
	}
	return New(db, opts...), db, nil
}

// Connect verifies the connection and creates the schema.
func (s *Store) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}

	if s.db == nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("sqldb: db is required")
	}
	if s.dialect == dialectUnknown {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("sqldb: unsupported driver %q", s.db.DriverName())
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("sqldb ping: %w", err)
	}

	if err := s.ensureSchema(ctx); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("ensure schema: %w", err)
	}

	s.logger.Info("connected to SQL store", "driver", s.db.DriverName(), "prefix", s.opts.prefix)
	return nil
}

// Close marks the store as disconnected.
// The caller is responsible for closing the database connection.
func (s *Store) Close(ctx context.Context) error {
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

func (s *Store) checkConnected() error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	return nil
}

func (s *Store) Users() store.UserRepository { return &userRepo{s: s} }
func (s *Store) Modes() store.ModeRepository { return &modeRepo{s: s} }
func (s *Store) Posts() store.PostRepository { return &postRepo{s: s} }
func (s *Store) Tags() store.TagRepository   { return &tagRepo{s: s} }
func (s *Store) Outbox() store.Outbox        { return &outbox{s: s} }

// withTx runs fn in a transaction. The transaction is committed when fn
// returns nil and rolled back otherwise.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", store.ErrTransactionFailed, err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", store.ErrTransactionFailed, err)
	}
	return nil
}

// enqueue records an index task inside tx.
func (s *Store) enqueue(ctx context.Context, tx *sqlx.Tx, kind store.Kind, id int64, op store.IndexOp) error {
	q := fmt.Sprintf(`INSERT INTO %s (id, kind, entity_id, op, attempts, last_error, created_at)
		VALUES (?, ?, ?, ?, 0, '', ?)`, s.tables.outbox)
	if _, err := tx.ExecContext(ctx, tx.Rebind(q), uuid.NewString(), string(kind), id, string(op), time.Now().UTC()); err != nil {
		return fmt.Errorf("enqueue index task: %w", err)
	}
	return nil
}

// enqueueAll records an index task for each id inside tx.
func (s *Store) enqueueAll(ctx context.Context, tx *sqlx.Tx, kind store.Kind, ids []int64, op store.IndexOp) error {
	for _, id := range ids {
		if err := s.enqueue(ctx, tx, kind, id, op); err != nil {
			return err
		}
	}
	return nil
}

// exists reports whether table has a row with id, using q (a *sqlx.DB or *sqlx.Tx).
func exists(ctx context.Context, q sqlx.QueryerContext, table string, id int64) (bool, error) {
	var n int
	query := sqlx.Rebind(sqlx.BindType(driverOf(q)), fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE id = ?`, table))
	if err := sqlx.GetContext(ctx, q, &n, query, id); err != nil {
		return false, err
	}
	return n > 0, nil
}

// selectIDs runs a query that returns a single int64 column.
func selectIDs(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) ([]int64, error) {
	query = sqlx.Rebind(sqlx.BindType(driverOf(q)), query)
	var ids []int64
	if err := sqlx.SelectContext(ctx, q, &ids, query, args...); err != nil {
		return nil, err
	}
	return ids, nil
}

func driverOf(q sqlx.QueryerContext) string {
	switch v := q.(type) {
	case *sqlx.Tx:
		return v.DriverName()
	case *sqlx.DB:
		return v.DriverName()
	}
	return ""
}

// rowsAffected returns store.ErrNotFound when res touched no row.
func rowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}
