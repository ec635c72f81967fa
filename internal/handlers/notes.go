package handlers

import (
	"encoding/json"
	"net/http"

	"docsage/internal/contentid"
	"docsage/internal/contextutil"
	"docsage/internal/notes"
)

// NotesHandler handles research note persistence and indexing.
type NotesHandler struct {
	coordinator *notes.Coordinator
	notesPrefix string
}

// NewNotesHandler creates a new NotesHandler.
func NewNotesHandler(coordinator *notes.Coordinator, notesPrefix string) *NotesHandler {
	return &NotesHandler{coordinator: coordinator, notesPrefix: notesPrefix}
}

// SaveNotesRequest is the payload for saving notes.
type SaveNotesRequest struct {
	DocumentID string `json:"document_id"`
	Notes      string `json:"notes"`
}

// NotesResponse carries a note body back to the client.
type NotesResponse struct {
	DocumentID string `json:"document_id"`
	Notes      string `json:"notes"`
}

// Fetch handles GET requests and returns the saved notes for a document.
func (h *NotesHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	rawID := r.URL.Query().Get("document_id")
	if rawID == "" {
		writeError(w, http.StatusBadRequest, "document_id is required")
		return
	}
	id := contentid.Sanitize(rawID)

	body, err := h.coordinator.Fetch(ctx, id)
	if err != nil {
		logger.ErrorContext(ctx, "failed to fetch notes", "document_id", id, "error", err)
		writeError(w, statusFromError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, NotesResponse{DocumentID: id, Notes: body})
}

// Save handles POST requests and appends a note to the document's record.
func (h *NotesHandler) Save(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req SaveNotesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DocumentID == "" {
		writeError(w, http.StatusBadRequest, "document_id is required")
		return
	}
	if req.Notes == "" {
		writeError(w, http.StatusBadRequest, "notes is required")
		return
	}
	id := contentid.Sanitize(req.DocumentID)

	if err := h.coordinator.Append(ctx, id, req.Notes); err != nil {
		logger.ErrorContext(ctx, "failed to save notes", "document_id", id, "error", err)
		writeError(w, statusFromError(err), err.Error())
		return
	}

	logger.InfoContext(ctx, "notes saved", "document_id", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved", "document_id": id})
}

// Index handles POST requests and rebuilds the notes index for a document.
func (h *NotesHandler) Index(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req struct {
		DocumentID string `json:"document_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DocumentID == "" {
		writeError(w, http.StatusBadRequest, "document_id is required")
		return
	}
	id := contentid.Sanitize(req.DocumentID)

	collection := contentid.Collection(h.notesPrefix, id)
	handle, err := h.coordinator.Index(ctx, id, collection)
	if err != nil {
		logger.ErrorContext(ctx, "failed to index notes", "document_id", id, "error", err)
		writeError(w, statusFromError(err), err.Error())
		return
	}

	logger.InfoContext(ctx, "notes indexed", "document_id", id, "collection", handle.Collection)
	writeJSON(w, http.StatusOK, map[string]string{"status": "indexed", "document_id": id})
}
