package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/pbinitiative/zenorchestrator/internal/log"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn"
	"github.com/pbinitiative/zenorchestrator/pkg/storage"
)

type ApiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	CodeBadRequest = "BAD_REQUEST"
	CodeNotFound   = "NOT_FOUND"
	CodeConflict   = "CONFLICT"
	CodeError      = "ERROR"
)

func writeError(w http.ResponseWriter, status int, apiErr ApiError) {
	writeJson(w, status, apiErr)
}

func badRequest(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, ApiError{Code: CodeBadRequest, Message: err.Error()})
}

// writeEngineError maps err onto an HTTP status. Anything not recognised is a server error.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation validator.ValidationErrors
		syntax     *json.SyntaxError
		unmarshal  *json.UnmarshalTypeError
	)
	switch {
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, bpmn.ErrActivityNotFound),
		errors.Is(err, bpmn.ErrProcessNotFound),
		errors.Is(err, bpmn.ErrDefinitionNotFound):
		writeError(w, http.StatusNotFound, ApiError{Code: CodeNotFound, Message: err.Error()})
	case errors.Is(err, bpmn.ErrIllegalArgument),
		errors.As(err, &validation),
		errors.As(err, &syntax),
		errors.As(err, &unmarshal):
		badRequest(w, err)
	case errors.Is(err, bpmn.ErrDefinitionSuspended),
		errors.Is(err, bpmn.ErrProcessNotActive),
		errors.Is(err, bpmn.ErrAmbiguousCorrelation):
		writeError(w, http.StatusConflict, ApiError{Code: CodeConflict, Message: err.Error()})
	default:
		log.Errorf(r.Context(), "request %s %s failed: %s", r.Method, r.URL.Path, err)
		writeError(w, http.StatusInternalServerError, ApiError{Code: CodeError, Message: err.Error()})
	}
}
