package handlers

import (
	"encoding/json"
	"net/http"

	"docsage/internal/contextutil"
	"docsage/internal/summary"
)

// SummaryHandler produces whole-document summaries.
type SummaryHandler struct {
	summarizer *summary.Summarizer
}

// NewSummaryHandler creates a new SummaryHandler.
func NewSummaryHandler(summarizer *summary.Summarizer) *SummaryHandler {
	return &SummaryHandler{summarizer: summarizer}
}

// SummaryRequest is the payload for generating a summary.
type SummaryRequest struct {
	DocumentReference string `json:"document_reference"`
}

// SummaryResponse carries the generated summary back to the client.
type SummaryResponse struct {
	Summary string `json:"summary"`
}

// Generate handles POST requests and returns a concise summary of the
// referenced document.
func (h *SummaryHandler) Generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req SummaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DocumentReference == "" {
		writeError(w, http.StatusBadRequest, "document_reference is required")
		return
	}

	text, err := h.summarizer.Summarize(ctx, req.DocumentReference)
	if err != nil {
		logger.ErrorContext(ctx, "failed to generate summary", "reference", req.DocumentReference, "error", err)
		writeError(w, statusFromError(err), err.Error())
		return
	}

	logger.InfoContext(ctx, "summary generated", "reference", req.DocumentReference)
	writeJSON(w, http.StatusOK, SummaryResponse{Summary: text})
}
