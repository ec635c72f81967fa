package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"docsage/internal/contentid"
	"docsage/internal/contextutil"
	"docsage/internal/metrics"
	"docsage/internal/query"
)

// QueryHandler handles RAG queries, whole or streamed.
type QueryHandler struct {
	engine      *query.Engine
	indexPrefix string
	notesPrefix string
	topKDefault int
	topKMax     int
}

// NewQueryHandler creates a new QueryHandler.
func NewQueryHandler(engine *query.Engine, indexPrefix, notesPrefix string, topKDefault, topKMax int) *QueryHandler {
	return &QueryHandler{
		engine:      engine,
		indexPrefix: indexPrefix,
		notesPrefix: notesPrefix,
		topKDefault: topKDefault,
		topKMax:     topKMax,
	}
}

// QueryRequest is the payload for query and query/stream.
type QueryRequest struct {
	DocumentID string `json:"document_id"`
	Question   string `json:"question"`
	TopK       int    `json:"top_k,omitempty"`
	// IndexType selects which index to search: the document index
	// (default) or the research-notes index.
	IndexType string `json:"index_type,omitempty"`
}

// QueryResponse is the whole-answer response.
type QueryResponse struct {
	Answer   string            `json:"answer"`
	Segments []query.Retrieved `json:"segments"`
}

// Ask handles POST query requests and returns the whole answer.
func (h *QueryHandler) Ask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	req, collection, ok := h.decode(w, r)
	if !ok {
		return
	}

	start := time.Now()
	result, err := h.engine.Ask(ctx, collection, req.Question, req.TopK)
	if err != nil {
		observeQuery("error", start)
		logger.ErrorContext(ctx, "query failed", "collection", collection, "error", err)
		writeError(w, statusFromError(err), err.Error())
		return
	}
	observeQuery("ok", start)

	segments := result.Segments
	if segments == nil {
		segments = []query.Retrieved{}
	}
	writeJSON(w, http.StatusOK, QueryResponse{Answer: result.Answer, Segments: segments})
}

// Stream handles POST query requests and relays the answer as a
// Server-Sent Event token stream, terminated by a [DONE] event.
func (h *QueryHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	req, collection, ok := h.decode(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	start := time.Now()
	wroteHeader := false
	_, err := h.engine.AskStream(ctx, collection, req.Question, req.TopK, func(token string) error {
		if !wroteHeader {
			w.WriteHeader(http.StatusOK)
			wroteHeader = true
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", token); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		observeQuery("error", start)
		logger.ErrorContext(ctx, "streamed query failed", "collection", collection, "error", err)
		if !wroteHeader {
			writeError(w, statusFromError(err), err.Error())
		}
		return
	}
	observeQuery("ok", start)

	_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func observeQuery(status string, start time.Time) {
	metrics.QueriesTotal.WithLabelValues(status).Inc()
	metrics.QueryDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
}

// decode parses and validates the request, resolving the target collection.
func (h *QueryHandler) decode(w http.ResponseWriter, r *http.Request) (QueryRequest, string, bool) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, "", false
	}
	if req.DocumentID == "" {
		writeError(w, http.StatusBadRequest, "document_id is required")
		return req, "", false
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return req, "", false
	}

	if req.TopK <= 0 {
		req.TopK = h.topKDefault
	}
	if req.TopK > h.topKMax {
		req.TopK = h.topKMax
	}

	prefix := h.indexPrefix
	switch req.IndexType {
	case "", h.indexPrefix:
	case h.notesPrefix:
		prefix = h.notesPrefix
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown index_type %q", req.IndexType))
		return req, "", false
	}

	collection := contentid.Collection(prefix, contentid.Sanitize(req.DocumentID))
	return req, collection, true
}
