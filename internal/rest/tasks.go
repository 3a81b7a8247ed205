package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn"
)

const defaultPollLimit = 10

type pollRequest struct {
	Topic                string `json:"topic" validate:"required"`
	ProcessDefinitionKey string `json:"processDefinitionKey"`
	Limit                *int   `json:"limit" validate:"omitempty,min=0"`
}

type correlateRequest struct {
	Message         string         `json:"message" validate:"required"`
	BusinessKey     string         `json:"businessKey"`
	CorrelationKeys map[string]any `json:"correlationKeys"`
	Variables       map[string]any `json:"variables"`
}

func (s *Server) pollExternalTasks(w http.ResponseWriter, r *http.Request) {
	var req pollRequest
	if err := s.decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	limit := defaultPollLimit
	if req.Limit != nil {
		limit = *req.Limit
	}
	tasks, err := s.engine.PollExternalTasks(r.Context(), req.Topic, req.ProcessDefinitionKey, limit)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []bpmn.ExternalTask{}
	}
	writeJson(w, http.StatusOK, tasks)
}

func (s *Server) completeExternalTask(w http.ResponseWriter, r *http.Request) {
	var req variablesRequest
	if err := decodeJson(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	s.noContent(w, r, s.engine.CompleteExternalTask(r.Context(), chi.URLParam(r, "id"), req.Variables))
}

func (s *Server) failExternalTask(w http.ResponseWriter, r *http.Request) {
	var req failureRequest
	if err := s.decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	s.noContent(w, r, s.engine.FailExternalTask(r.Context(), chi.URLParam(r, "id"), req.failure(), req.Variables))
}

func (s *Server) correlateMessage(w http.ResponseWriter, r *http.Request) {
	var req correlateRequest
	if err := s.decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	process, err := s.engine.CorrelateMessage(r.Context(), req.Message, req.BusinessKey, req.CorrelationKeys, req.Variables)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJson(w, http.StatusOK, process)
}
