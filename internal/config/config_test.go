package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// setEnv sets an environment variable, ignoring errors (for test setup)
func setEnv(key, value string) {
	_ = os.Setenv(key, value)
}

// unsetEnv unsets an environment variable, ignoring errors (for test cleanup)
func unsetEnv(key string) {
	_ = os.Unsetenv(key)
}

var envVars = []string{
	"API_PORT", "LOG_LEVEL", "LOG_FORMAT",
	"VECTOR_BACKEND", "QDRANT_URL", "DB_PATH", "VECTOR_SIZE",
	"INDEX_PREFIX", "NOTES_PREFIX", "SEGMENT_TARGET_SIZE",
	"EMBEDDING_BASE_URL", "EMBEDDING_MODEL",
	"LLM_BASE_URL", "LLM_MODEL", "LLM_API_KEY",
	"EMBED_RATE_LIMIT", "EMBED_BATCH_SIZE",
	"DOCUMENT_BASE_URL", "DOWNLOAD_TIMEOUT_SECONDS",
	"TOP_K_DEFAULT", "TOP_K_MAX",
}

// withCleanEnv snapshots and clears the config env vars for a test.
func withCleanEnv(t *testing.T) {
	t.Helper()
	original := make(map[string]string)
	for _, key := range envVars {
		original[key] = os.Getenv(key)
		unsetEnv(key)
	}
	t.Cleanup(func() {
		for key, value := range original {
			if value != "" {
				setEnv(key, value)
			} else {
				unsetEnv(key)
			}
		}
	})
	// Keep the data dir created by Load out of the repo.
	setEnv("DB_PATH", filepath.Join(t.TempDir(), "test.db"))
}

func TestLoad_Defaults(t *testing.T) {
	withCleanEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.APIPort != "9000" {
		t.Errorf("APIPort = %q, want %q", cfg.APIPort, "9000")
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
	if cfg.VectorBackend != "qdrant" {
		t.Errorf("VectorBackend = %q, want qdrant", cfg.VectorBackend)
	}
	if cfg.VectorSize != 1024 {
		t.Errorf("VectorSize = %d, want 1024", cfg.VectorSize)
	}
	if cfg.IndexPrefix != "pdf-index" {
		t.Errorf("IndexPrefix = %q, want pdf-index", cfg.IndexPrefix)
	}
	if cfg.NotesPrefix != "research-notes" {
		t.Errorf("NotesPrefix = %q, want research-notes", cfg.NotesPrefix)
	}
	if cfg.SegmentTargetSize != 650 {
		t.Errorf("SegmentTargetSize = %d, want 650", cfg.SegmentTargetSize)
	}
	if cfg.EmbedBatchSize != 16 {
		t.Errorf("EmbedBatchSize = %d, want 16", cfg.EmbedBatchSize)
	}
	if cfg.EmbedRateLimit != 5 {
		t.Errorf("EmbedRateLimit = %v, want 5", cfg.EmbedRateLimit)
	}
	if cfg.DownloadTimeout != 60*time.Second {
		t.Errorf("DownloadTimeout = %v, want 60s", cfg.DownloadTimeout)
	}
	if cfg.TopKDefault != 5 || cfg.TopKMax != 20 {
		t.Errorf("TopK = %d/%d, want 5/20", cfg.TopKDefault, cfg.TopKMax)
	}
}

func TestLoad_Overrides(t *testing.T) {
	withCleanEnv(t)

	setEnv("API_PORT", "8123")
	setEnv("LOG_LEVEL", "debug")
	setEnv("VECTOR_BACKEND", "SQLITE")
	setEnv("VECTOR_SIZE", "768")
	setEnv("SEGMENT_TARGET_SIZE", "400")
	setEnv("TOP_K_DEFAULT", "3")
	setEnv("TOP_K_MAX", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.APIPort != "8123" {
		t.Errorf("APIPort = %q, want 8123", cfg.APIPort)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}
	if cfg.VectorBackend != "sqlite" {
		t.Errorf("VectorBackend = %q, want sqlite (lowercased)", cfg.VectorBackend)
	}
	if cfg.VectorSize != 768 {
		t.Errorf("VectorSize = %d, want 768", cfg.VectorSize)
	}
	if cfg.SegmentTargetSize != 400 {
		t.Errorf("SegmentTargetSize = %d, want 400", cfg.SegmentTargetSize)
	}
	if cfg.TopKDefault != 3 || cfg.TopKMax != 10 {
		t.Errorf("TopK = %d/%d, want 3/10", cfg.TopKDefault, cfg.TopKMax)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unknown backend", key: "VECTOR_BACKEND", value: "pinecone"},
		{name: "bad log level", key: "LOG_LEVEL", value: "verbose"},
		{name: "non-integer vector size", key: "VECTOR_SIZE", value: "big"},
		{name: "zero vector size", key: "VECTOR_SIZE", value: "0"},
		{name: "negative segment size", key: "SEGMENT_TARGET_SIZE", value: "-1"},
		{name: "zero batch size", key: "EMBED_BATCH_SIZE", value: "0"},
		{name: "bad rate limit", key: "EMBED_RATE_LIMIT", value: "fast"},
		{name: "zero rate limit", key: "EMBED_RATE_LIMIT", value: "0"},
		{name: "zero timeout", key: "DOWNLOAD_TIMEOUT_SECONDS", value: "0"},
		{name: "top_k max below default", key: "TOP_K_MAX", value: "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withCleanEnv(t)
			setEnv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Load() with %s=%q expected error, got nil", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_CreatesDataDir(t *testing.T) {
	withCleanEnv(t)

	dir := filepath.Join(t.TempDir(), "nested", "data")
	setEnv("DB_PATH", filepath.Join(dir, "docsage.db"))

	if _, err := Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("data directory not created: %v", err)
	}
}
