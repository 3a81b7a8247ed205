package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

type runJobRequest struct {
	Type string `json:"type" validate:"required,oneof=COMPACTION TIMEOUT_SCAN"`
}

func (s *Server) compactHistory(w http.ResponseWriter, r *http.Request) {
	var limit *int
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		badRequest(w, err)
		return
	}
	batch := 0
	if limit != nil {
		batch = *limit
	}
	job, err := s.engine.CompactHistory(r.Context(), batch)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJson(w, http.StatusOK, job)
}

func (s *Server) runJob(w http.ResponseWriter, r *http.Request) {
	var req runJobRequest
	if err := s.decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	job, err := s.engine.RunJob(r.Context(), req.Type)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJson(w, http.StatusOK, job)
}

func (s *Server) findJobs(w http.ResponseWriter, r *http.Request) {
	page, err := pageParams(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	jobs, err := s.engine.FindJobs(r.Context(), page)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJson(w, http.StatusOK, jobs)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.engine.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJson(w, http.StatusOK, job)
}
