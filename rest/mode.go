package rest

import (
	"net/http"

	"github.com/rbaliyan/blog"
	"github.com/rbaliyan/blog/store"
)

func (s *Server) createMode(w http.ResponseWriter, r *http.Request) {
	var m store.Mode
	if !s.decodeBody(w, r, store.KindMode, &m) {
		return
	}
	saved, err := s.svc.Modes().Create(r.Context(), &m)
	err = s.committed(r, err)
	if err != nil {
		s.respondError(w, r, string(store.KindMode), err)
		return
	}
	s.created(w, store.KindMode, saved.ID, saved)
}

func (s *Server) updateMode(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, store.KindMode)
	if !ok {
		return
	}
	var m store.Mode
	if !s.decodeBody(w, r, store.KindMode, &m) {
		return
	}
	saved, err := s.svc.Modes().Update(r.Context(), id, &m)
	err = s.committed(r, err)
	if err != nil {
		s.respondError(w, r, string(store.KindMode), err)
		return
	}
	s.updated(w, store.KindMode, saved.ID, saved)
}

func (s *Server) patchMode(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, store.KindMode)
	if !ok {
		return
	}
	var p blog.ModePatch
	if !s.decodePatch(w, r, store.KindMode, &p) {
		return
	}
	saved, err := s.svc.Modes().Patch(r.Context(), id, p)
	err = s.committed(r, err)
	if err != nil {
		s.respondError(w, r, string(store.KindMode), err)
		return
	}
	s.updated(w, store.KindMode, saved.ID, saved)
}

// listModes returns every mode; modes are not paged.
func (s *Server) listModes(w http.ResponseWriter, r *http.Request) {
	eager, ok := s.eagerLoad(w, r, store.KindMode)
	if !ok {
		return
	}
	modes, err := s.svc.Modes().List(r.Context(), eager)
	if err != nil {
		s.respondError(w, r, string(store.KindMode), err)
		return
	}
	respondJSON(w, http.StatusOK, modes)
}

func (s *Server) getMode(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, store.KindMode)
	if !ok {
		return
	}
	m, err := s.svc.Modes().Get(r.Context(), id)
	if err != nil {
		s.respondError(w, r, string(store.KindMode), err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

func (s *Server) deleteMode(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, store.KindMode)
	if !ok {
		return
	}
	if err := s.committed(r, s.svc.Modes().Delete(r.Context(), id)); err != nil {
		s.respondError(w, r, string(store.KindMode), err)
		return
	}
	s.deleted(w, store.KindMode, id)
}

func (s *Server) searchModes(w http.ResponseWriter, r *http.Request) {
	q, ok := s.searchQuery(w, r, store.KindMode)
	if !ok {
		return
	}
	modes, err := s.svc.Modes().SearchAll(r.Context(), q)
	if err != nil {
		s.respondError(w, r, string(store.KindMode), err)
		return
	}
	respondJSON(w, http.StatusOK, modes)
}
