package rest

import (
	"encoding/json"
	"mime"
	"net/http"

	"github.com/rbaliyan/blog/store"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 8 << 20

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, kind store.Kind, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.badRequest(w, r, string(kind), "http.400", "Malformed request body")
		return false
	}
	return true
}

// decodePatch accepts application/json and application/merge-patch+json bodies.
func (s *Server) decodePatch(w http.ResponseWriter, r *http.Request, kind store.Kind, dst any) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || (mt != "application/json" && mt != "application/merge-patch+json") {
		respondProblem(w, Problem{
			Type:    problemBase + "problem-with-message",
			Title:   "Unsupported Media Type",
			Status:  http.StatusUnsupportedMediaType,
			Path:    r.URL.Path,
			Message: "error.http.415",
		})
		return false
	}
	return s.decodeBody(w, r, kind, dst)
}
