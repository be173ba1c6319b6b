package rest

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rbaliyan/blog/store"
)

// Health is the body of GET /management/health.
type Health struct {
	Status        string `json:"status"`
	OutboxBacklog int64  `json:"outboxBacklog"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if !s.svc.IsConnected() {
		respondJSON(w, http.StatusServiceUnavailable, Health{Status: "DOWN"})
		return
	}
	backlog, err := s.svc.IndexBacklog(r.Context())
	if err != nil {
		s.logger(r).Warn("read outbox backlog", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, Health{Status: "DOWN"})
		return
	}
	respondJSON(w, http.StatusOK, Health{Status: "UP", OutboxBacklog: backlog})
}

func (s *Server) drainOutbox(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.DrainIndexOutbox(r.Context())
	if err != nil {
		s.respondError(w, r, "outbox", err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// ReindexResult is the body of POST /management/reindex/{kind}.
type ReindexResult struct {
	Kind      string `json:"kind"`
	Documents int64  `json:"documents"`
}

func (s *Server) reindex(w http.ResponseWriter, r *http.Request) {
	kind, err := store.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		s.badRequest(w, r, mux.Vars(r)["kind"], "http.400", "Unknown entity kind")
		return
	}
	n, err := s.svc.Reindex(r.Context(), kind)
	if err != nil {
		s.respondError(w, r, string(kind), err)
		return
	}
	respondJSON(w, http.StatusOK, ReindexResult{Kind: string(kind), Documents: n})
}
