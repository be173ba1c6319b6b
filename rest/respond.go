package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/rbaliyan/blog"
)

const problemBase = "https://www.jhipster.tech/problem/"

// Problem is an application/problem+json error body.
type Problem struct {
	Type        string       `json:"type"`
	Title       string       `json:"title"`
	Status      int          `json:"status"`
	Detail      string       `json:"detail,omitempty"`
	Path        string       `json:"path,omitempty"`
	Message     string       `json:"message"`
	Params      string       `json:"params,omitempty"`
	FieldErrors []FieldError `json:"fieldErrors,omitempty"`
}

// FieldError is one validation failure in a Problem.
type FieldError struct {
	ObjectName string `json:"objectName"`
	Field      string `json:"field"`
	Message    string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func respondProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// alert sets the X-<app>-alert headers of a successful mutation.
func (s *Server) alert(w http.ResponseWriter, entity, action, id string) {
	w.Header().Set("X-"+s.opts.appName+"-alert", s.opts.appName+"."+entity+"."+action)
	w.Header().Set("X-"+s.opts.appName+"-params", id)
}

// failureAlert sets the X-<app>-error headers of a rejected request.
func (s *Server) failureAlert(w http.ResponseWriter, entity, key string) {
	w.Header().Set("X-"+s.opts.appName+"-error", key)
	w.Header().Set("X-"+s.opts.appName+"-params", entity)
}

// badRequest responds 400 with a message key.
func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, entity, reason, detail string) {
	key := "error." + reason
	s.failureAlert(w, entity, key)
	respondProblem(w, Problem{
		Type:    problemBase + "problem-with-message",
		Title:   detail,
		Status:  http.StatusBadRequest,
		Path:    r.URL.Path,
		Message: key,
		Params:  entity,
	})
}

// respondError maps a service error to a problem response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, entity string, err error) {
	if bre, ok := blog.IsBadRequestAlert(err); ok {
		s.badRequest(w, r, bre.Entity, bre.Reason, bre.Message)
		return
	}

	if fields := blog.FieldErrors(err); len(fields) > 0 {
		p := Problem{
			Type:    problemBase + "constraint-violation",
			Title:   "Method argument not valid",
			Status:  http.StatusBadRequest,
			Path:    r.URL.Path,
			Message: "error.validation",
			Params:  entity,
		}
		for _, f := range fields {
			p.FieldErrors = append(p.FieldErrors, FieldError{ObjectName: f.Entity, Field: f.Field, Message: f.Message})
		}
		s.failureAlert(w, entity, "error.validation")
		respondProblem(w, p)
		return
	}

	status, title := http.StatusInternalServerError, "Internal Server Error"
	switch {
	case errors.Is(err, blog.ErrNotFound):
		status, title = http.StatusNotFound, "Not Found"
	case errors.Is(err, blog.ErrInvalidQuery), errors.Is(err, blog.ErrInvalidSort), errors.Is(err, blog.ErrUnknownKind):
		status, title = http.StatusBadRequest, "Bad Request"
	case errors.Is(err, blog.ErrNotConnected):
		status, title = http.StatusServiceUnavailable, "Service Unavailable"
	}

	p := Problem{
		Type:    problemBase + "problem-with-message",
		Title:   title,
		Status:  status,
		Path:    r.URL.Path,
		Message: "error.http." + strconv.Itoa(status),
	}
	if status == http.StatusInternalServerError {
		s.logger(r).Error("request failed", "entity", entity, "error", err)
	} else {
		p.Detail = err.Error()
	}
	respondProblem(w, p)
}

func (s *Server) logger(r *http.Request) *slog.Logger {
	if l, ok := r.Context().Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return s.opts.logger
}

// committed clears an *blog.EventPublishError. The write it reports is
// already stored, so the client gets the write's response and the failed
// publish is only logged.
func (s *Server) committed(r *http.Request, err error) error {
	var pubErr *blog.EventPublishError
	if !errors.As(err, &pubErr) {
		return err
	}
	s.logger(r).Warn("event publish failed after write",
		"event", pubErr.Event, "kind", pubErr.Kind, "id", pubErr.ID, "error", pubErr.Err)
	return nil
}
