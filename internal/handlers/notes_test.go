package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	fetch_mocks "docsage/internal/fetch/mocks"
	"docsage/internal/index"
	llm_mocks "docsage/internal/llm/mocks"
	"docsage/internal/notes"
	"docsage/internal/segmenter"
	"docsage/internal/storage"
	storage_mocks "docsage/internal/storage/mocks"
	"docsage/internal/vectorstore"
	vectorstore_mocks "docsage/internal/vectorstore/mocks"
)

type notesHarness struct {
	handler  *NotesHandler
	repo     *storage_mocks.MockNoteStore
	store    *vectorstore_mocks.MockStore
	embedder *llm_mocks.MockEmbedder
}

func newNotesHarness(t *testing.T, ctrl *gomock.Controller) *notesHarness {
	t.Helper()
	repo := storage_mocks.NewMockNoteStore(ctrl)
	store := vectorstore_mocks.NewMockStore(ctrl)
	embedder := llm_mocks.NewMockEmbedder(ctrl)
	source := fetch_mocks.NewMockSource(ctrl)
	manager := index.NewManager(store, embedder, source, segmenter.New(650), index.Config{
		Backend:   "managed",
		Dimension: 2,
		Metric:    vectorstore.MetricCosine,
		EmbedRate: 1000,
	})
	coordinator := notes.NewCoordinator(repo, manager)
	return &notesHarness{
		handler:  NewNotesHandler(coordinator, "research-notes"),
		repo:     repo,
		store:    store,
		embedder: embedder,
	}
}

func TestNotesHandler_Fetch(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newNotesHarness(t, ctrl)

	h.repo.EXPECT().Get(gomock.Any(), "doc1").Return("saved notes", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notes?document_id=doc1", nil)
	rec := httptest.NewRecorder()
	h.handler.Fetch(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp NotesResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Notes != "saved notes" || resp.DocumentID != "doc1" {
		t.Errorf("response = %+v", resp)
	}
}

func TestNotesHandler_FetchMissing(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newNotesHarness(t, ctrl)

	h.repo.EXPECT().Get(gomock.Any(), "doc1").Return("", storage.ErrNotFound)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notes?document_id=doc1", nil)
	rec := httptest.NewRecorder()
	h.handler.Fetch(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestNotesHandler_FetchMissingParam(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newNotesHarness(t, ctrl)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notes", nil)
	rec := httptest.NewRecorder()
	h.handler.Fetch(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestNotesHandler_Save(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newNotesHarness(t, ctrl)

	h.repo.EXPECT().Append(gomock.Any(), "doc1", "The model has six layers.").Return(nil)

	body := `{"document_id":"doc1","notes":"The model has six layers."}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/notes", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.handler.Save(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestNotesHandler_SaveValidation(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newNotesHarness(t, ctrl)

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{`},
		{name: "missing document_id", body: `{"notes":"text"}`},
		{name: "missing notes", body: `{"document_id":"doc1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/notes", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.handler.Save(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestNotesHandler_Index(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newNotesHarness(t, ctrl)

	h.repo.EXPECT().Get(gomock.Any(), "doc1").Return("Saved answer about layers.", nil)
	h.store.EXPECT().Delete(gomock.Any(), "research-notes-doc1").Return(nil)
	h.embedder.EXPECT().EmbedTexts(gomock.Any(), gomock.Any()).DoAndReturn(embedFixed)
	h.store.EXPECT().Create(gomock.Any(), "research-notes-doc1", 2, vectorstore.MetricCosine).Return(nil)
	h.store.EXPECT().Upsert(gomock.Any(), "research-notes-doc1", gomock.Any()).Return(nil)

	body := `{"document_id":"doc1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/notes/index", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.handler.Index(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestNotesHandler_IndexWithoutNotes(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newNotesHarness(t, ctrl)

	h.repo.EXPECT().Get(gomock.Any(), "doc1").Return("", storage.ErrNotFound)

	body := `{"document_id":"doc1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/notes/index", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.handler.Index(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
