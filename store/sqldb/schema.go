package sqldb

import (
	"context"
	"fmt"
	"strings"

	"github.com/rbaliyan/blog/store"
)

type dialect int

const (
	dialectUnknown dialect = iota
	dialectPostgres
	dialectSQLite
)

func dialectFor(driverName string) dialect {
	switch driverName {
	case DriverPostgres, "pgx":
		return dialectPostgres
	case DriverSQLite, "sqlite":
		return dialectSQLite
	default:
		return dialectUnknown
	}
}

// tables holds the (prefixed) table names.
type tables struct {
	users    string
	modes    string
	posts    string
	tags     string
	postTags string
	outbox   string
}

func newTables(prefix string) tables {
	return tables{
		users:    prefix + "app_user",
		modes:    prefix + "mode",
		posts:    prefix + "post",
		tags:     prefix + "tag",
		postTags: prefix + "rel_post__tags",
		outbox:   prefix + "index_outbox",
	}
}

// ensureSchema creates the required tables and indexes.
func (s *Store) ensureSchema(ctx context.Context) error {
	// Column types that differ between dialects.
	id, ts := "BIGSERIAL PRIMARY KEY", "TIMESTAMPTZ"
	if s.dialect == dialectSQLite {
		id, ts = "INTEGER PRIMARY KEY AUTOINCREMENT", "TIMESTAMP"
	}
	t := s.tables

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id %s,
			login VARCHAR(50) NOT NULL
		)`, t.users, id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id %s,
			name VARCHAR(255) NOT NULL,
			handle VARCHAR(255) NOT NULL,
			user_id BIGINT REFERENCES %s(id) ON DELETE SET NULL
		)`, t.modes, id, t.users),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id %s,
			name VARCHAR(255) NOT NULL
		)`, t.tags, id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id %s,
			title VARCHAR(255) NOT NULL,
			content TEXT NOT NULL,
			post_date %s NOT NULL,
			mode_id BIGINT REFERENCES %s(id) ON DELETE SET NULL
		)`, t.posts, id, ts, t.modes),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			post_id BIGINT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
			tags_id BIGINT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
			PRIMARY KEY (post_id, tags_id)
		)`, t.postTags, t.posts, t.tags),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			seq %s,
			id VARCHAR(36) NOT NULL,
			kind VARCHAR(16) NOT NULL,
			entity_id BIGINT NOT NULL,
			op VARCHAR(16) NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			created_at %s NOT NULL
		)`, t.outbox, id, ts),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_user ON %s(user_id)`, t.modes, t.modes),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_mode ON %s(mode_id)`, t.posts, t.posts),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_tag ON %s(tags_id)`, t.postTags, t.postTags),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_entity ON %s(kind, entity_id)`, t.outbox, t.outbox),
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(stmt string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(stmt), "\n")
	return strings.TrimSuffix(line, " (")
}

// sortColumns maps sortable fields to qualified columns for each kind.
// The aliases match the ones used in the select statements.
var sortColumns = map[store.Kind]map[string]string{
	store.KindUser: {"id": "u.id", "login": "u.login"},
	store.KindMode: {"id": "m.id", "name": "m.name", "handle": "m.handle"},
	store.KindPost: {"id": "p.id", "title": "p.title", "content": "p.content", "date": "p.post_date"},
	store.KindTag:  {"id": "t.id", "name": "t.name"},
}

// orderBy builds the ORDER BY clause, always ending with the id column so
// paging is stable.
func orderBy(kind store.Kind, orders []store.Order) (string, error) {
	if err := store.ValidateSort(kind, orders); err != nil {
		return "", err
	}
	cols := sortColumns[kind]
	parts := make([]string, 0, len(orders)+1)
	for _, o := range orders {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		parts = append(parts, cols[o.Field]+" "+dir)
	}
	parts = append(parts, cols["id"]+" ASC")
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

// limitOffset returns the paging clause and its arguments.
func limitOffset(req store.PageRequest) (string, []any) {
	if req.IsUnpaged() {
		return "", nil
	}
	return " LIMIT ? OFFSET ?", []any{req.Size, req.Offset()}
}
