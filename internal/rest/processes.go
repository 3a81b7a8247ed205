package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
)

type startProcessRequest struct {
	Key          string         `json:"key" validate:"required_without=DefinitionId,excluded_with=DefinitionId"`
	Version      *int           `json:"version" validate:"omitempty,min=1,excluded_with=DefinitionId"`
	DefinitionId string         `json:"definitionId"`
	BusinessKey  string         `json:"businessKey"`
	Variables    map[string]any `json:"variables"`
}

func (s *Server) startProcess(w http.ResponseWriter, r *http.Request) {
	var req startProcessRequest
	if err := s.decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	var (
		process *runtime.Process
		err     error
	)
	switch {
	case req.DefinitionId != "":
		process, err = s.engine.StartProcessByDefinitionId(r.Context(), req.DefinitionId, req.BusinessKey, req.Variables)
	case req.Version != nil:
		process, err = s.engine.StartProcessByKeyAndVersion(r.Context(), req.Key, *req.Version, req.BusinessKey, req.Variables)
	default:
		process, err = s.engine.StartProcessByKey(r.Context(), req.Key, req.BusinessKey, req.Variables)
	}
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJson(w, http.StatusCreated, process)
}

func (s *Server) findProcesses(w http.ResponseWriter, r *http.Request) {
	page, err := pageParams(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	processes, err := s.engine.FindProcesses(r.Context(), page)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJson(w, http.StatusOK, processes)
}

func (s *Server) getProcess(w http.ResponseWriter, r *http.Request) {
	execution, err := s.engine.GetProcess(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJson(w, http.StatusOK, execution)
}

func (s *Server) terminateProcess(w http.ResponseWriter, r *http.Request) {
	s.noContent(w, r, s.engine.TerminateProcess(r.Context(), chi.URLParam(r, "id")))
}

func (s *Server) cancelProcess(w http.ResponseWriter, r *http.Request) {
	s.noContent(w, r, s.engine.CancelProcess(r.Context(), chi.URLParam(r, "id")))
}

func (s *Server) deleteProcess(w http.ResponseWriter, r *http.Request) {
	s.noContent(w, r, s.engine.DeleteProcess(r.Context(), chi.URLParam(r, "id")))
}

func (s *Server) getProcessVariables(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	// an unknown process has no variables, answer 404 instead of an empty map
	if _, err := s.engine.GetProcess(r.Context(), id); err != nil {
		writeEngineError(w, r, err)
		return
	}
	variables, err := s.engine.ProcessVariables(r.Context(), id)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJson(w, http.StatusOK, variables)
}

func (s *Server) setProcessVariables(w http.ResponseWriter, r *http.Request) {
	variables := map[string]any{}
	if err := decodeJson(r, &variables); err != nil {
		badRequest(w, err)
		return
	}
	s.noContent(w, r, s.engine.SetVariables(r.Context(), chi.URLParam(r, "id"), variables))
}

func (s *Server) noContent(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
