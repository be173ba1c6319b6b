package rest

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rbaliyan/blog"
	"github.com/rbaliyan/blog/store"
)

// RequestIDHeader carries the per-request identifier.
const RequestIDHeader = "X-Request-Id"

type loggerKey struct{}

// Server exposes a blog.Service over HTTP.
type Server struct {
	svc    blog.Service
	opts   options
	router *mux.Router
}

// NewServer builds the router for svc.
func NewServer(svc blog.Service, opts ...Option) *Server {
	o := options{appName: DefaultAppName, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Server{svc: svc, opts: o}
	s.router = s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.requestContext)

	api := router.PathPrefix("/api").Subrouter()

	modes := api.PathPrefix("/modes").Subrouter()
	modes.HandleFunc("", s.createMode).Methods(http.MethodPost)
	modes.HandleFunc("", s.listModes).Methods(http.MethodGet)
	modes.HandleFunc("/_search", s.searchModes).Methods(http.MethodGet)
	modes.HandleFunc("/{id}", s.updateMode).Methods(http.MethodPut)
	modes.HandleFunc("/{id}", s.patchMode).Methods(http.MethodPatch)
	modes.HandleFunc("/{id}", s.getMode).Methods(http.MethodGet)
	modes.HandleFunc("/{id}", s.deleteMode).Methods(http.MethodDelete)

	posts := api.PathPrefix("/posts").Subrouter()
	posts.HandleFunc("", s.createPost).Methods(http.MethodPost)
	posts.HandleFunc("", s.listPosts).Methods(http.MethodGet)
	posts.HandleFunc("/_search", s.searchPosts).Methods(http.MethodGet)
	posts.HandleFunc("/{id}", s.updatePost).Methods(http.MethodPut)
	posts.HandleFunc("/{id}", s.patchPost).Methods(http.MethodPatch)
	posts.HandleFunc("/{id}", s.getPost).Methods(http.MethodGet)
	posts.HandleFunc("/{id}", s.deletePost).Methods(http.MethodDelete)

	tags := api.PathPrefix("/tags").Subrouter()
	tags.HandleFunc("", s.createTag).Methods(http.MethodPost)
	tags.HandleFunc("", s.listTags).Methods(http.MethodGet)
	tags.HandleFunc("/_search", s.searchTags).Methods(http.MethodGet)
	tags.HandleFunc("/{id}", s.updateTag).Methods(http.MethodPut)
	tags.HandleFunc("/{id}", s.patchTag).Methods(http.MethodPatch)
	tags.HandleFunc("/{id}", s.getTag).Methods(http.MethodGet)
	tags.HandleFunc("/{id}", s.deleteTag).Methods(http.MethodDelete)

	mgmt := router.PathPrefix("/management").Subrouter()
	mgmt.HandleFunc("/health", s.health).Methods(http.MethodGet)
	mgmt.HandleFunc("/outbox/drain", s.drainOutbox).Methods(http.MethodPost)
	mgmt.HandleFunc("/reindex/{kind}", s.reindex).Methods(http.MethodPost)

	return router
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestContext tags each request with an id and a logger, and logs the outcome.
func (s *Server) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		logger := s.opts.logger.With("request_id", id)
		r = r.WithContext(context.WithValue(r.Context(), loggerKey{}, logger))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

// pathID reads the {id} route variable. A non-numeric id is an idinvalid alert.
func (s *Server) pathID(w http.ResponseWriter, r *http.Request, kind store.Kind) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.badRequest(w, r, string(kind), blog.ReasonIDInvalid, "Invalid id")
		return 0, false
	}
	return id, true
}

// eagerLoad reads the eagerload flag, defaulting to true.
func (s *Server) eagerLoad(w http.ResponseWriter, r *http.Request, kind store.Kind) (bool, bool) {
	v := r.URL.Query().Get("eagerload")
	if v == "" {
		return true, true
	}
	eager, err := strconv.ParseBool(v)
	if err != nil {
		s.badRequest(w, r, string(kind), "http.400", "Invalid eagerload flag")
		return false, false
	}
	return eager, true
}

// searchQuery reads the required query parameter.
func (s *Server) searchQuery(w http.ResponseWriter, r *http.Request, kind store.Kind) (string, bool) {
	q := r.URL.Query()
	if !q.Has("query") {
		s.badRequest(w, r, string(kind), "http.400", "Required parameter query is missing")
		return "", false
	}
	return q.Get("query"), true
}

func (s *Server) created(w http.ResponseWriter, kind store.Kind, id int64, payload any) {
	sid := strconv.FormatInt(id, 10)
	w.Header().Set("Location", "/api/"+string(kind)+"s/"+sid)
	s.alert(w, string(kind), "created", sid)
	respondJSON(w, http.StatusCreated, payload)
}

func (s *Server) updated(w http.ResponseWriter, kind store.Kind, id int64, payload any) {
	s.alert(w, string(kind), "updated", strconv.FormatInt(id, 10))
	respondJSON(w, http.StatusOK, payload)
}

func (s *Server) deleted(w http.ResponseWriter, kind store.Kind, id int64) {
	s.alert(w, string(kind), "deleted", strconv.FormatInt(id, 10))
	w.WriteHeader(http.StatusNoContent)
}
