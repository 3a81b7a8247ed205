package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
)

type variablesRequest struct {
	Variables map[string]any `json:"variables"`
}

type failureRequest struct {
	Reason    string         `json:"reason" validate:"required"`
	Trace     string         `json:"trace"`
	Variables map[string]any `json:"variables"`
}

func (f failureRequest) failure() *runtime.ActivityFailure {
	return &runtime.ActivityFailure{Reason: f.Reason, Trace: f.Trace}
}

func (s *Server) completeActivity(w http.ResponseWriter, r *http.Request) {
	var req variablesRequest
	if err := decodeJson(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	s.noContent(w, r, s.engine.CompleteActivity(r.Context(), chi.URLParam(r, "id"), req.Variables))
}

func (s *Server) failActivity(w http.ResponseWriter, r *http.Request) {
	var req failureRequest
	if err := s.decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	s.noContent(w, r, s.engine.FailActivity(r.Context(), chi.URLParam(r, "id"), req.failure(), req.Variables))
}

func (s *Server) retryActivity(w http.ResponseWriter, r *http.Request) {
	s.noContent(w, r, s.engine.RetryActivity(r.Context(), chi.URLParam(r, "id")))
}

func (s *Server) terminateActivity(w http.ResponseWriter, r *http.Request) {
	withoutInterruption, err := boolParam(r, "withoutInterruption")
	if err != nil {
		badRequest(w, err)
		return
	}
	s.noContent(w, r, s.engine.TerminateActivity(r.Context(), chi.URLParam(r, "id"), withoutInterruption))
}

func (s *Server) setActivityVariables(w http.ResponseWriter, r *http.Request) {
	local, err := boolParam(r, "local")
	if err != nil {
		badRequest(w, err)
		return
	}
	variables := map[string]any{}
	if err := decodeJson(r, &variables); err != nil {
		badRequest(w, err)
		return
	}
	s.noContent(w, r, s.engine.SetActivityVariablesById(r.Context(), chi.URLParam(r, "id"), variables, local))
}
