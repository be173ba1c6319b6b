package rest

import (
	"net/http"

	"github.com/rbaliyan/blog"
	"github.com/rbaliyan/blog/store"
)

func (s *Server) createTag(w http.ResponseWriter, r *http.Request) {
	var t store.Tag
	if !s.decodeBody(w, r, store.KindTag, &t) {
		return
	}
	saved, err := s.svc.Tags().Create(r.Context(), &t)
	err = s.committed(r, err)
	if err != nil {
		s.respondError(w, r, string(store.KindTag), err)
		return
	}
	s.created(w, store.KindTag, saved.ID, saved)
}

func (s *Server) updateTag(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, store.KindTag)
	if !ok {
		return
	}
	var t store.Tag
	if !s.decodeBody(w, r, store.KindTag, &t) {
		return
	}
	saved, err := s.svc.Tags().Update(r.Context(), id, &t)
	err = s.committed(r, err)
	if err != nil {
		s.respondError(w, r, string(store.KindTag), err)
		return
	}
	s.updated(w, store.KindTag, saved.ID, saved)
}

func (s *Server) patchTag(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, store.KindTag)
	if !ok {
		return
	}
	var p blog.TagPatch
	if !s.decodePatch(w, r, store.KindTag, &p) {
		return
	}
	saved, err := s.svc.Tags().Patch(r.Context(), id, p)
	err = s.committed(r, err)
	if err != nil {
		s.respondError(w, r, string(store.KindTag), err)
		return
	}
	s.updated(w, store.KindTag, saved.ID, saved)
}

func (s *Server) listTags(w http.ResponseWriter, r *http.Request) {
	req, ok := s.pageRequest(w, r, store.KindTag)
	if !ok {
		return
	}
	page, err := s.svc.Tags().List(r.Context(), req)
	if err != nil {
		s.respondError(w, r, string(store.KindTag), err)
		return
	}
	respondPage(w, r, page)
}

func (s *Server) getTag(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, store.KindTag)
	if !ok {
		return
	}
	t, err := s.svc.Tags().Get(r.Context(), id)
	if err != nil {
		s.respondError(w, r, string(store.KindTag), err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (s *Server) deleteTag(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, store.KindTag)
	if !ok {
		return
	}
	if err := s.committed(r, s.svc.Tags().Delete(r.Context(), id)); err != nil {
		s.respondError(w, r, string(store.KindTag), err)
		return
	}
	s.deleted(w, store.KindTag, id)
}

func (s *Server) searchTags(w http.ResponseWriter, r *http.Request) {
	q, ok := s.searchQuery(w, r, store.KindTag)
	if !ok {
		return
	}
	req, ok := s.pageRequest(w, r, store.KindTag)
	if !ok {
		return
	}
	page, err := s.svc.Tags().Search(r.Context(), q, req)
	if err != nil {
		s.respondError(w, r, string(store.KindTag), err)
		return
	}
	respondPage(w, r, page)
}
