package rest

import (
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rbaliyan/blog/store"
)

// pageRequest reads page, size and sort. Size defaults to
// store.DefaultPageSize and is capped at store.MaxPageSize. Pages whose
// offset would overflow are rejected.
func (s *Server) pageRequest(w http.ResponseWriter, r *http.Request, kind store.Kind) (store.PageRequest, bool) {
	q := r.URL.Query()
	req := store.PageRequest{Size: store.DefaultPageSize}

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.badRequest(w, r, string(kind), "http.400", "Invalid page number")
			return req, false
		}
		req.Page = n
	}
	if v := q.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.badRequest(w, r, string(kind), "http.400", "Invalid page size")
			return req, false
		}
		req.Size = min(n, store.MaxPageSize)
	}
	// The end of the requested window must fit in an int.
	if req.Page >= math.MaxInt/req.Size {
		s.badRequest(w, r, string(kind), "http.400", "Invalid page number")
		return req, false
	}
	for _, v := range q["sort"] {
		o, err := store.ParseOrder(v)
		if err != nil {
			s.respondError(w, r, string(kind), err)
			return req, false
		}
		req.Sort = append(req.Sort, o)
	}
	return req, true
}

// respondPage writes the items of a page with X-Total-Count and Link headers.
func respondPage[T any](w http.ResponseWriter, r *http.Request, page *store.Page[T]) {
	w.Header().Set("X-Total-Count", strconv.FormatInt(page.Total, 10))
	if link := linkHeader(r.URL, page); link != "" {
		w.Header().Set("Link", link)
	}
	respondJSON(w, http.StatusOK, page.Items)
}

func linkHeader[T any](u *url.URL, page *store.Page[T]) string {
	if page.Size <= 0 {
		return ""
	}
	last := max(page.TotalPages()-1, 0)

	link := func(n int, rel string) string {
		q := u.Query()
		q.Set("page", strconv.Itoa(n))
		q.Set("size", strconv.Itoa(page.Size))
		ref := url.URL{Path: u.Path, RawQuery: q.Encode()}
		return fmt.Sprintf("<%s>; rel=%q", ref.String(), rel)
	}

	var links []string
	if page.HasNext() {
		links = append(links, link(page.Page+1, "next"))
	}
	if page.Page > 0 {
		links = append(links, link(page.Page-1, "prev"))
	}
	links = append(links, link(last, "last"), link(0, "first"))
	return strings.Join(links, ",")
}
