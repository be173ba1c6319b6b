package rest

import (
	"net/http"

	"github.com/rbaliyan/blog"
	"github.com/rbaliyan/blog/store"
)

func (s *Server) createPost(w http.ResponseWriter, r *http.Request) {
	var p store.Post
	if !s.decodeBody(w, r, store.KindPost, &p) {
		return
	}
	saved, err := s.svc.Posts().Create(r.Context(), &p)
	err = s.committed(r, err)
	if err != nil {
		s.respondError(w, r, string(store.KindPost), err)
		return
	}
	s.created(w, store.KindPost, saved.ID, saved)
}

func (s *Server) updatePost(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, store.KindPost)
	if !ok {
		return
	}
	var p store.Post
	if !s.decodeBody(w, r, store.KindPost, &p) {
		return
	}
	saved, err := s.svc.Posts().Update(r.Context(), id, &p)
	err = s.committed(r, err)
	if err != nil {
		s.respondError(w, r, string(store.KindPost), err)
		return
	}
	s.updated(w, store.KindPost, saved.ID, saved)
}

func (s *Server) patchPost(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, store.KindPost)
	if !ok {
		return
	}
	var p blog.PostPatch
	if !s.decodePatch(w, r, store.KindPost, &p) {
		return
	}
	saved, err := s.svc.Posts().Patch(r.Context(), id, p)
	err = s.committed(r, err)
	if err != nil {
		s.respondError(w, r, string(store.KindPost), err)
		return
	}
	s.updated(w, store.KindPost, saved.ID, saved)
}

func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	req, ok := s.pageRequest(w, r, store.KindPost)
	if !ok {
		return
	}
	eager, ok := s.eagerLoad(w, r, store.KindPost)
	if !ok {
		return
	}
	page, err := s.svc.Posts().List(r.Context(), req, eager)
	if err != nil {
		s.respondError(w, r, string(store.KindPost), err)
		return
	}
	respondPage(w, r, page)
}

func (s *Server) getPost(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, store.KindPost)
	if !ok {
		return
	}
	p, err := s.svc.Posts().Get(r.Context(), id)
	if err != nil {
		s.respondError(w, r, string(store.KindPost), err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) deletePost(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, store.KindPost)
	if !ok {
		return
	}
	if err := s.committed(r, s.svc.Posts().Delete(r.Context(), id)); err != nil {
		s.respondError(w, r, string(store.KindPost), err)
		return
	}
	s.deleted(w, store.KindPost, id)
}

func (s *Server) searchPosts(w http.ResponseWriter, r *http.Request) {
	q, ok := s.searchQuery(w, r, store.KindPost)
	if !ok {
		return
	}
	req, ok := s.pageRequest(w, r, store.KindPost)
	if !ok {
		return
	}
	page, err := s.svc.Posts().Search(r.Context(), q, req)
	if err != nil {
		s.respondError(w, r, string(store.KindPost), err)
		return
	}
	respondPage(w, r, page)
}
