package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rbaliyan/blog"
	searchmem "github.com/rbaliyan/blog/search/memory"
	"github.com/rbaliyan/blog/store"
	"github.com/rbaliyan/blog/store/memory"
)

func setupTestServer(t *testing.T) (*httptest.Server, blog.Service) {
	t.Helper()
	svc, err := blog.NewService(
		blog.WithStore(memory.New()),
		blog.WithIndex(searchmem.New()),
		blog.WithSyncIndexing(true),
	)
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	if err := svc.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { svc.Close(context.Background()) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts := httptest.NewServer(NewServer(svc, WithLogger(logger)))
	t.Cleanup(ts.Close)
	return ts, svc
}

func do(t *testing.T, method, url, contentType string, body any) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		if s, ok := body.(string); ok {
			rdr = strings.NewReader(s)
		} else {
			b, err := json.Marshal(body)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			rdr = bytes.NewReader(b)
		}
	}
	req, err := http.NewRequest(method, url, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: expected %d, got %d: %s", resp.Request.Method, resp.Request.URL.Path, want, resp.StatusCode, b)
	}
}

func TestModeEndpoints(t *testing.T) {
	ts, _ := setupTestServer(t)
	base := ts.URL + "/api/modes"

	resp := do(t, http.MethodPost, base, "application/json", store.Mode{Name: "AAAAAAAAAA", Handle: "AAAAAAAAAA"})
	expectStatus(t, resp, http.StatusCreated)
	created := decode[store.Mode](t, resp)
	id := strconv.FormatInt(created.ID, 10)

	if got := resp.Header.Get("Location"); got != "/api/modes/"+id {
		t.Errorf("unexpected Location %q", got)
	}
	if got := resp.Header.Get("X-blogApp-alert"); got != "blogApp.mode.created" {
		t.Errorf("unexpected alert %q", got)
	}
	if got := resp.Header.Get("X-blogApp-params"); got != id {
		t.Errorf("unexpected alert params %q", got)
	}

	t.Run("get", func(t *testing.T) {
		resp := do(t, http.MethodGet, base+"/"+id, "", nil)
		expectStatus(t, resp, http.StatusOK)
		if m := decode[store.Mode](t, resp); m.Name != "AAAAAAAAAA" {
			t.Errorf("unexpected mode %+v", m)
		}
	})

	t.Run("update", func(t *testing.T) {
		resp := do(t, http.MethodPut, base+"/"+id, "application/json",
			store.Mode{ID: created.ID, Name: "BBBBBBBBBB", Handle: "BBBBBBBBBB"})
		expectStatus(t, resp, http.StatusOK)
		if got := resp.Header.Get("X-blogApp-alert"); got != "blogApp.mode.updated" {
			t.Errorf("unexpected alert %q", got)
		}
		if m := decode[store.Mode](t, resp); m.Name != "BBBBBBBBBB" {
			t.Errorf("unexpected mode %+v", m)
		}
	})

	t.Run("patch", func(t *testing.T) {
		body := `{"id":` + id + `,"handle":"CCCCCCCCCC"}`
		resp := do(t, http.MethodPatch, base+"/"+id, "application/merge-patch+json", body)
		expectStatus(t, resp, http.StatusOK)
		m := decode[store.Mode](t, resp)
		if m.Name != "BBBBBBBBBB" || m.Handle != "CCCCCCCCCC" {
			t.Errorf("unexpected mode %+v", m)
		}
	})

	t.Run("list", func(t *testing.T) {
		resp := do(t, http.MethodGet, base+"?eagerload=false", "", nil)
		expectStatus(t, resp, http.StatusOK)
		if modes := decode[[]store.Mode](t, resp); len(modes) != 1 {
			t.Errorf("expected 1 mode, got %d", len(modes))
		}
	})

	t.Run("search", func(t *testing.T) {
		resp := do(t, http.MethodGet, base+"/_search?query=id:"+id, "", nil)
		expectStatus(t, resp, http.StatusOK)
		modes := decode[[]store.Mode](t, resp)
		if len(modes) != 1 || modes[0].ID != created.ID {
			t.Errorf("unexpected search result %+v", modes)
		}
	})

	t.Run("delete", func(t *testing.T) {
		resp := do(t, http.MethodDelete, base+"/"+id, "", nil)
		expectStatus(t, resp, http.StatusNoContent)
		if got := resp.Header.Get("X-blogApp-alert"); got != "blogApp.mode.deleted" {
			t.Errorf("unexpected alert %q", got)
		}
		expectStatus(t, do(t, http.MethodGet, base+"/"+id, "", nil), http.StatusNotFound)
	})
}

func TestIdentifierErrors(t *testing.T) {
	ts, _ := setupTestServer(t)
	base := ts.URL + "/api/tags"

	cases := []struct {
		name   string
		method string
		url    string
		body   any
		status int
		key    string
	}{
		{"create with id", http.MethodPost, base, store.Tag{ID: 1, Name: "golang"}, http.StatusBadRequest, "error.idexists"},
		{"update without id", http.MethodPut, base + "/1", store.Tag{Name: "golang"}, http.StatusBadRequest, "error.idnull"},
		{"update with mismatched id", http.MethodPut, base + "/1", store.Tag{ID: 2, Name: "golang"}, http.StatusBadRequest, "error.idinvalid"},
		{"update missing row", http.MethodPut, base + "/5", store.Tag{ID: 5, Name: "golang"}, http.StatusBadRequest, "error.idnotfound"},
		{"non-numeric id", http.MethodGet, base + "/abc", nil, http.StatusBadRequest, "error.idinvalid"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := do(t, tc.method, tc.url, "application/json", tc.body)
			expectStatus(t, resp, tc.status)
			if got := resp.Header.Get("X-blogApp-error"); got != tc.key {
				t.Errorf("expected error header %q, got %q", tc.key, got)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "application/problem+json" {
				t.Errorf("unexpected content type %q", ct)
			}
			if p := decode[Problem](t, resp); p.Message != tc.key {
				t.Errorf("expected problem message %q, got %q", tc.key, p.Message)
			}
		})
	}

	t.Run("unknown id", func(t *testing.T) {
		url := base + "/" + strconv.FormatInt(math.MaxInt64, 10)
		expectStatus(t, do(t, http.MethodGet, url, "", nil), http.StatusNotFound)
	})

	t.Run("delete missing", func(t *testing.T) {
		expectStatus(t, do(t, http.MethodDelete, base+"/99", "", nil), http.StatusNoContent)
	})
}

func TestValidationProblem(t *testing.T) {
	ts, _ := setupTestServer(t)

	resp := do(t, http.MethodPost, ts.URL+"/api/modes", "application/json", store.Mode{Name: "ab"})
	expectStatus(t, resp, http.StatusBadRequest)
	p := decode[Problem](t, resp)
	if p.Message != "error.validation" {
		t.Errorf("unexpected message %q", p.Message)
	}
	fields := map[string]bool{}
	for _, fe := range p.FieldErrors {
		fields[fe.Field] = true
	}
	if !fields["name"] || !fields["handle"] {
		t.Errorf("expected name and handle field errors, got %+v", p.FieldErrors)
	}
}

func TestPatchContentType(t *testing.T) {
	ts, svc := setupTestServer(t)
	tag, err := svc.Tags().Create(context.Background(), &store.Tag{Name: "golang"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	url := ts.URL + "/api/tags/" + strconv.FormatInt(tag.ID, 10)
	body := `{"id":` + strconv.FormatInt(tag.ID, 10) + `,"name":"gopher"}`

	expectStatus(t, do(t, http.MethodPatch, url, "text/plain", body), http.StatusUnsupportedMediaType)
	expectStatus(t, do(t, http.MethodPatch, url, "application/json; charset=utf-8", body), http.StatusOK)
}

func TestPostPaging(t *testing.T) {
	ts, svc := setupTestServer(t)
	ctx := context.Background()

	mode, err := svc.Modes().Create(ctx, &store.Mode{Name: "journal", Handle: "jr"})
	if err != nil {
		t.Fatalf("create mode: %v", err)
	}
	var ids []int64
	for i := range 3 {
		p, err := svc.Posts().Create(ctx, &store.Post{
			Title:   "post " + strconv.Itoa(i),
			Content: "content",
			Date:    mustDate(t, "2019-01-01T10:00:00Z"),
			Mode:    &store.Mode{ID: mode.ID},
		})
		if err != nil {
			t.Fatalf("create post: %v", err)
		}
		ids = append(ids, p.ID)
	}

	t.Run("sorted descending", func(t *testing.T) {
		resp := do(t, http.MethodGet, ts.URL+"/api/posts?sort=id,desc&size=2", "", nil)
		expectStatus(t, resp, http.StatusOK)
		if got := resp.Header.Get("X-Total-Count"); got != "3" {
			t.Errorf("unexpected total %q", got)
		}
		if link := resp.Header.Get("Link"); !strings.Contains(link, `rel="next"`) {
			t.Errorf("expected next link, got %q", link)
		}
		posts := decode[[]store.Post](t, resp)
		if len(posts) != 2 || posts[0].ID != ids[2] {
			t.Errorf("unexpected page %+v", posts)
		}
		if posts[0].Mode == nil || posts[0].Mode.Name != "journal" {
			t.Errorf("expected eager mode, got %+v", posts[0].Mode)
		}
	})

	t.Run("lazy", func(t *testing.T) {
		resp := do(t, http.MethodGet, ts.URL+"/api/posts?eagerload=false", "", nil)
		expectStatus(t, resp, http.StatusOK)
		posts := decode[[]store.Post](t, resp)
		if len(posts) != 3 {
			t.Fatalf("expected 3 posts, got %d", len(posts))
		}
		if posts[0].Mode == nil || posts[0].Mode.Name != "" {
			t.Errorf("expected mode id only, got %+v", posts[0].Mode)
		}
	})

	t.Run("unknown sort field", func(t *testing.T) {
		expectStatus(t, do(t, http.MethodGet, ts.URL+"/api/posts?sort=bogus,asc", "", nil), http.StatusBadRequest)
	})

	t.Run("search", func(t *testing.T) {
		resp := do(t, http.MethodGet, ts.URL+"/api/posts/_search?query=mode:journal", "", nil)
		expectStatus(t, resp, http.StatusOK)
		if got := resp.Header.Get("X-Total-Count"); got != "3" {
			t.Errorf("unexpected total %q", got)
		}
	})

	t.Run("malformed query", func(t *testing.T) {
		expectStatus(t, do(t, http.MethodGet, ts.URL+"/api/posts/_search?query=title:", "", nil), http.StatusBadRequest)
	})
}

func TestPageBounds(t *testing.T) {
	ts, svc := setupTestServer(t)
	if _, err := svc.Tags().Create(context.Background(), &store.Tag{Name: "golang"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, path := range []string{
		"/api/tags?page=92233720368547759&size=100",
		"/api/tags/_search?query=*&page=92233720368547759&size=100",
		"/api/posts?page=" + strconv.Itoa(math.MaxInt) + "&size=1",
	} {
		t.Run(path, func(t *testing.T) {
			resp := do(t, http.MethodGet, ts.URL+path, "", nil)
			expectStatus(t, resp, http.StatusBadRequest)
			if p := decode[Problem](t, resp); p.Message != "error.http.400" {
				t.Errorf("unexpected message %q", p.Message)
			}
		})
	}

	t.Run("largest page", func(t *testing.T) {
		page := math.MaxInt/100 - 1
		resp := do(t, http.MethodGet, ts.URL+"/api/tags?size=100&page="+strconv.Itoa(page), "", nil)
		expectStatus(t, resp, http.StatusOK)
		if tags := decode[[]store.Tag](t, resp); len(tags) != 0 {
			t.Errorf("expected no tags, got %d", len(tags))
		}
		link := resp.Header.Get("Link")
		if strings.Contains(link, `rel="next"`) || !strings.Contains(link, `rel="prev"`) {
			t.Errorf("unexpected link %q", link)
		}
	})
}

func TestManagementEndpoints(t *testing.T) {
	ts, svc := setupTestServer(t)
	if _, err := svc.Tags().Create(context.Background(), &store.Tag{Name: "golang"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	resp := do(t, http.MethodGet, ts.URL+"/management/health", "", nil)
	expectStatus(t, resp, http.StatusOK)
	if h := decode[Health](t, resp); h.Status != "UP" || h.OutboxBacklog != 0 {
		t.Errorf("unexpected health %+v", h)
	}
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Error("expected a request id header")
	}

	resp = do(t, http.MethodPost, ts.URL+"/management/reindex/tag", "", nil)
	expectStatus(t, resp, http.StatusOK)
	if res := decode[ReindexResult](t, resp); res.Documents != 1 {
		t.Errorf("unexpected reindex result %+v", res)
	}

	expectStatus(t, do(t, http.MethodPost, ts.URL+"/management/reindex/user", "", nil), http.StatusBadRequest)
	expectStatus(t, do(t, http.MethodPost, ts.URL+"/management/outbox/drain", "", nil), http.StatusOK)
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	return d
}

func TestCommittedWrites(t *testing.T) {
	_, svc := setupTestServer(t)
	var logs bytes.Buffer
	srv := NewServer(svc, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	r := httptest.NewRequest(http.MethodPost, "/api/tags", nil)

	t.Run("publish failure is a success", func(t *testing.T) {
		err := fmt.Errorf("create: %w", &blog.EventPublishError{
			Event: "EntityCreated", Kind: store.KindTag, ID: 7, Err: errors.New("bus down"),
		})
		if got := srv.committed(r, err); got != nil {
			t.Fatalf("expected nil, got %v", got)
		}
		if !strings.Contains(logs.String(), "event publish failed after write") {
			t.Errorf("expected a warning, got %q", logs.String())
		}
	})

	t.Run("other errors pass through", func(t *testing.T) {
		err := blog.ErrNotFound
		if got := srv.committed(r, err); !errors.Is(got, blog.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", got)
		}
		if got := srv.committed(r, nil); got != nil {
			t.Errorf("expected nil, got %v", got)
		}
	})
}
