package rest

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// maxDefinitionSize bounds the body of a deployment.
const maxDefinitionSize = 4 << 20

type definitionRef struct {
	Id  string `json:"id" validate:"required_without=Key"`
	Key string `json:"key" validate:"required_without=Id"`
}

func (s *Server) deployDefinitions(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxDefinitionSize))
	if err != nil {
		badRequest(w, err)
		return
	}
	definitions, err := s.engine.DeployYaml(r.Context(), data, r.URL.Query().Get("deployment"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJson(w, http.StatusCreated, definitions)
}

func (s *Server) findDefinitions(w http.ResponseWriter, r *http.Request) {
	page, err := pageParams(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	definitions, err := s.engine.FindDefinitions(r.Context(), page)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJson(w, http.StatusOK, definitions)
}

func (s *Server) getDefinition(w http.ResponseWriter, r *http.Request) {
	definition, err := s.engine.GetDefinition(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJson(w, http.StatusOK, definition)
}

func (s *Server) suspendDefinition(w http.ResponseWriter, r *http.Request) {
	var ref definitionRef
	if err := s.decodeBody(r, &ref); err != nil {
		badRequest(w, err)
		return
	}
	if err := s.engine.SuspendDefinition(r.Context(), ref.Id, ref.Key); err != nil {
		writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) resumeDefinition(w http.ResponseWriter, r *http.Request) {
	var ref definitionRef
	if err := s.decodeBody(r, &ref); err != nil {
		badRequest(w, err)
		return
	}
	if err := s.engine.ResumeDefinition(r.Context(), ref.Id, ref.Key); err != nil {
		writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
