package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func embeddingsServer(t *testing.T, size int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("path = %q", r.URL.Path)
		}

		var req embeddingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			vec := make([]float64, size)
			vec[0] = float64(i) + 0.5
			data[i] = map[string]any{"embedding": vec}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
}

func TestEmbeddingsClient_EmbedTexts(t *testing.T) {
	server := embeddingsServer(t, 4)
	defer server.Close()

	c := NewEmbeddingsClient(server.URL, "test-key", "test-model", 4)
	got, err := c.EmbedTexts(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("EmbedTexts() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("EmbedTexts() returned %d vectors, want 2", len(got))
	}
	for i, vec := range got {
		if len(vec) != 4 {
			t.Errorf("vector %d has size %d, want 4", i, len(vec))
		}
	}
	// Order preserved: vec[0] encodes the input index.
	if got[0][0] != 0.5 || got[1][0] != 1.5 {
		t.Errorf("order not preserved: %v, %v", got[0][0], got[1][0])
	}
}

func TestEmbeddingsClient_EmptyInput(t *testing.T) {
	c := NewEmbeddingsClient("http://unused", "k", "m", 4)
	if _, err := c.EmbedTexts(context.Background(), nil); err == nil {
		t.Error("EmbedTexts() with empty input expected error")
	}
}

func TestEmbeddingsClient_SizeMismatch(t *testing.T) {
	server := embeddingsServer(t, 8)
	defer server.Close()

	c := NewEmbeddingsClient(server.URL, "test-key", "test-model", 4)
	if _, err := c.EmbedTexts(context.Background(), []string{"text"}); err == nil {
		t.Error("EmbedTexts() with wrong vector size expected error")
	}
}

func TestEmbeddingsClient_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	}))
	defer server.Close()

	c := NewEmbeddingsClient(server.URL, "test-key", "test-model", 4)
	if _, err := c.EmbedTexts(context.Background(), []string{"text"}); err == nil {
		t.Error("EmbedTexts() with missing embeddings expected error")
	}
}

func TestEmbeddingsClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := NewEmbeddingsClient(server.URL, "test-key", "test-model", 4)
	if _, err := c.EmbedTexts(context.Background(), []string{"text"}); err == nil {
		t.Error("EmbedTexts() on server error expected error")
	}
}
