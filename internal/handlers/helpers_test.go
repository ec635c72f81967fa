package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"docsage/internal/fetch"
	"docsage/internal/segmenter"
	"docsage/internal/storage"
	"docsage/internal/vectorstore"
)

func TestStatusFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "schema conflict", err: vectorstore.ErrSchemaConflict, want: http.StatusConflict},
		{name: "collection not found", err: vectorstore.ErrCollectionNotFound, want: http.StatusNotFound},
		{name: "notes not found", err: storage.ErrNotFound, want: http.StatusNotFound},
		{name: "backend unavailable", err: vectorstore.ErrBackendUnavailable, want: http.StatusServiceUnavailable},
		{name: "extraction failure", err: segmenter.ErrExtraction, want: http.StatusUnprocessableEntity},
		{name: "download failure", err: fetch.ErrDownload, want: http.StatusBadGateway},
		{name: "wrapped sentinel", err: fmt.Errorf("build failed: %w", fetch.ErrDownload), want: http.StatusBadGateway},
		{name: "unknown error", err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFromError(tt.err); got != tt.want {
				t.Errorf("statusFromError(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
