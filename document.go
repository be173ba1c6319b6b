package blog

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rbaliyan/blog/search"
	"github.com/rbaliyan/blog/store"
)

// indexDateLayout renders post dates so that "date:2019-01-01" matches the
// day component as a phrase.
const indexDateLayout = "2006-01-02 15:04:05"

// modeDocument builds the index document of an eagerly loaded mode.
func modeDocument(m *store.Mode) (search.Document, error) {
	fields := map[string]string{
		"id":     strconv.FormatInt(m.ID, 10),
		"name":   m.Name,
		"handle": m.Handle,
	}
	if m.User != nil {
		fields["user"] = m.User.Login
	}
	return newDocument(store.KindMode, m.ID, fields, m)
}

// postDocument builds the index document of an eagerly loaded post. The mode
// and tag names are embedded so that posts match on them.
func postDocument(p *store.Post) (search.Document, error) {
	fields := map[string]string{
		"id":      strconv.FormatInt(p.ID, 10),
		"title":   p.Title,
		"content": p.Content,
		"date":    p.Date.UTC().Format(indexDateLayout),
	}
	if p.Mode != nil {
		fields["mode"] = p.Mode.Name
	}
	if len(p.Tags) > 0 {
		names := make([]string, 0, len(p.Tags))
		for _, t := range p.Tags {
			names = append(names, t.Name)
		}
		fields["tags"] = strings.Join(names, " ")
	}
	return newDocument(store.KindPost, p.ID, fields, p)
}

// tagDocument builds the index document of a tag.
func tagDocument(t *store.Tag) (search.Document, error) {
	fields := map[string]string{
		"id":   strconv.FormatInt(t.ID, 10),
		"name": t.Name,
	}
	return newDocument(store.KindTag, t.ID, fields, t)
}

func newDocument(kind store.Kind, id int64, fields map[string]string, src any) (search.Document, error) {
	raw, err := json.Marshal(src)
	if err != nil {
		return search.Document{}, fmt.Errorf("encode %s %d: %w", kind, id, err)
	}
	return search.Document{Kind: kind, ID: id, Fields: fields, Source: raw}, nil
}

// decodeHits decodes the source of each hit into a new T.
func decodeHits[T any](kind store.Kind, hits []search.Hit) ([]*T, error) {
	out := make([]*T, 0, len(hits))
	for _, h := range hits {
		v := new(T)
		if err := json.Unmarshal(h.Source, v); err != nil {
			return nil, fmt.Errorf("decode %s %d from index: %w", kind, h.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}
