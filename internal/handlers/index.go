package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"docsage/internal/contentid"
	"docsage/internal/contextutil"
	"docsage/internal/index"
)

// IndexHandler handles index existence checks, builds, and reloads.
type IndexHandler struct {
	manager *index.Manager
	prefix  string
}

// NewIndexHandler creates a new IndexHandler. prefix is the collection kind
// for document indexes.
func NewIndexHandler(manager *index.Manager, prefix string) *IndexHandler {
	return &IndexHandler{
		manager: manager,
		prefix:  prefix,
	}
}

// BuildRequest is the payload for build and reload.
type BuildRequest struct {
	// DocumentReference locates the source document: a URL or storage key.
	DocumentReference string `json:"document_reference"`
	// DocumentID optionally names the document; when empty the id is
	// derived from the reference.
	DocumentID string `json:"document_id,omitempty"`
}

// BuildResponse reports the index state after a build or reload.
type BuildResponse struct {
	Status    string `json:"status"`
	ContentID string `json:"content_id"`
}

// ExistsResponse reports whether an index exists.
type ExistsResponse struct {
	Exists bool `json:"exists"`
}

// Exists handles GET existence probes. It never builds.
func (h *IndexHandler) Exists(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	docID := r.URL.Query().Get("document_id")
	if docID == "" {
		writeError(w, http.StatusBadRequest, "document_id is required")
		return
	}

	collection := contentid.Collection(h.prefix, contentid.Sanitize(docID))
	exists, err := h.manager.Check(ctx, collection)
	if err != nil {
		logger.ErrorContext(ctx, "existence check failed", "collection", collection, "error", err)
		writeError(w, statusFromError(err), "failed to check index")
		return
	}

	writeJSON(w, http.StatusOK, ExistsResponse{Exists: exists})
}

// Build handles POST build requests: builds the index if absent, no-ops if
// it already exists.
func (h *IndexHandler) Build(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.manager.Ensure)
}

// Reload handles POST reload requests: unconditionally deletes and rebuilds.
func (h *IndexHandler) Reload(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.manager.Reload)
}

func (h *IndexHandler) run(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, reference, contentID, collection string) (index.Handle, error)) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req BuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DocumentReference == "" {
		writeError(w, http.StatusBadRequest, "document_reference is required")
		return
	}

	id := contentid.Derive(req.DocumentReference)
	if req.DocumentID != "" {
		id = contentid.Sanitize(req.DocumentID)
	}
	collection := contentid.Collection(h.prefix, id)

	handle, err := op(ctx, req.DocumentReference, id, collection)
	if err != nil {
		logger.ErrorContext(ctx, "index operation failed", "collection", collection, "error", err)
		writeError(w, statusFromError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, BuildResponse{Status: handle.State.String(), ContentID: handle.ContentID})
}
