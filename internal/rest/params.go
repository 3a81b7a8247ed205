package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/oapi-codegen/runtime"
	"github.com/pbinitiative/zenorchestrator/pkg/storage"
)

const PaginationDefaultLimit = 50

func pageParams(r *http.Request) (storage.Page, error) {
	var offset, limit *int
	query := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "offset", query, &offset); err != nil {
		return storage.Page{}, err
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", query, &limit); err != nil {
		return storage.Page{}, err
	}
	page := storage.Page{Limit: PaginationDefaultLimit}
	if offset != nil {
		page.Offset = *offset
	}
	if limit != nil {
		page.Limit = *limit
	}
	return page, nil
}

func boolParam(r *http.Request, name string) (bool, error) {
	var value *bool
	if err := runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), &value); err != nil {
		return false, err
	}
	return value != nil && *value, nil
}

// decodeJson reads a JSON body into dest. An empty body leaves dest untouched.
func decodeJson(r *http.Request, dest any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dest)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// decodeBody decodes a JSON body into the struct dest and validates it.
func (s *Server) decodeBody(r *http.Request, dest any) error {
	if err := decodeJson(r, dest); err != nil {
		return err
	}
	return s.validate.Struct(dest)
}
