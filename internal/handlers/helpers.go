package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"docsage/internal/fetch"
	"docsage/internal/segmenter"
	"docsage/internal/storage"
	"docsage/internal/vectorstore"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// statusFromError maps the domain error taxonomy onto HTTP statuses so the
// presentation layer can decide between retrying, prompting a rebuild, and
// showing a terminal failure.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, vectorstore.ErrSchemaConflict):
		return http.StatusConflict
	case errors.Is(err, vectorstore.ErrCollectionNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, vectorstore.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, segmenter.ErrExtraction):
		return http.StatusUnprocessableEntity
	case errors.Is(err, fetch.ErrDownload):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
