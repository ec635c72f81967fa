package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
// It is built once at startup and passed explicitly into constructors;
// nothing in this program reads configuration from package-level state.
type Config struct {
	APIPort   string
	LogLevel  slog.Level
	LogFormat string

	// Vector backend selection: "qdrant" (managed, remote) or "sqlite" (embedded).
	VectorBackend string
	QdrantURL     string
	DBPath        string

	// VectorSize must match the output dimension of the embedding model.
	VectorSize int

	// Collection name prefixes. Document indexes and research-note indexes
	// live in separate collections derived from the same content id.
	IndexPrefix string
	NotesPrefix string

	// Segmenter sizing, in runes.
	SegmentTargetSize int

	EmbeddingBaseURL string
	EmbeddingModel   string
	LLMBaseURL       string
	LLMModel         string
	LLMAPIKey        string

	// EmbedRateLimit caps embedding batch calls per second during builds.
	EmbedRateLimit float64
	EmbedBatchSize int

	// DocumentBaseURL resolves bare storage keys to fetchable URLs.
	DocumentBaseURL string
	DownloadTimeout time.Duration

	TopKDefault int
	TopKMax     int
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or project root, it is loaded
// automatically; environment variables already set take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load() // Try current directory

	// Walk up to find a project-root .env (next to go.mod) when run from a subdir.
	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ {
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	cfg := &Config{
		APIPort:          getEnv("API_PORT", "9000"),
		LogFormat:        getEnv("LOG_FORMAT", "text"),
		VectorBackend:    strings.ToLower(getEnv("VECTOR_BACKEND", "qdrant")),
		QdrantURL:        getEnv("QDRANT_URL", "http://localhost:6333"),
		DBPath:           getEnv("DB_PATH", "./data/docsage.db"),
		IndexPrefix:      getEnv("INDEX_PREFIX", "pdf-index"),
		NotesPrefix:      getEnv("NOTES_PREFIX", "research-notes"),
		EmbeddingBaseURL: getEnv("EMBEDDING_BASE_URL", "http://localhost:8081"),
		EmbeddingModel:   getEnv("EMBEDDING_MODEL", "nvidia/nv-embedqa-e5-v5"),
		LLMBaseURL:       getEnv("LLM_BASE_URL", "http://localhost:8080"),
		LLMModel:         getEnv("LLM_MODEL", "meta/llama3-70b-instruct"),
		LLMAPIKey:        getEnv("LLM_API_KEY", "dummy-key"),
		DocumentBaseURL:  getEnv("DOCUMENT_BASE_URL", ""),
	}

	cfg.LogLevel, err = parseLogLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	switch cfg.VectorBackend {
	case "qdrant", "sqlite":
	default:
		return nil, fmt.Errorf("VECTOR_BACKEND must be \"qdrant\" or \"sqlite\", got %q", cfg.VectorBackend)
	}

	// Note: the vector size must match the output dimension of the embedding
	// model. nv-embedqa-e5-v5 emits 1024-dimensional vectors. If the size
	// changes, existing collections must be reloaded.
	cfg.VectorSize, err = getEnvInt("VECTOR_SIZE", 1024)
	if err != nil {
		return nil, err
	}
	if cfg.VectorSize <= 0 {
		return nil, fmt.Errorf("VECTOR_SIZE must be greater than 0")
	}

	cfg.SegmentTargetSize, err = getEnvInt("SEGMENT_TARGET_SIZE", 650)
	if err != nil {
		return nil, err
	}
	if cfg.SegmentTargetSize <= 0 {
		return nil, fmt.Errorf("SEGMENT_TARGET_SIZE must be greater than 0")
	}

	cfg.EmbedBatchSize, err = getEnvInt("EMBED_BATCH_SIZE", 16)
	if err != nil {
		return nil, err
	}
	if cfg.EmbedBatchSize <= 0 {
		return nil, fmt.Errorf("EMBED_BATCH_SIZE must be greater than 0")
	}

	rateStr := getEnv("EMBED_RATE_LIMIT", "5")
	cfg.EmbedRateLimit, err = strconv.ParseFloat(rateStr, 64)
	if err != nil || cfg.EmbedRateLimit <= 0 {
		return nil, fmt.Errorf("EMBED_RATE_LIMIT must be a positive number, got %q", rateStr)
	}

	timeoutSec, err := getEnvInt("DOWNLOAD_TIMEOUT_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	if timeoutSec <= 0 {
		return nil, fmt.Errorf("DOWNLOAD_TIMEOUT_SECONDS must be greater than 0")
	}
	cfg.DownloadTimeout = time.Duration(timeoutSec) * time.Second

	cfg.TopKDefault, err = getEnvInt("TOP_K_DEFAULT", 5)
	if err != nil {
		return nil, err
	}
	cfg.TopKMax, err = getEnvInt("TOP_K_MAX", 20)
	if err != nil {
		return nil, err
	}
	if cfg.TopKDefault <= 0 || cfg.TopKMax < cfg.TopKDefault {
		return nil, fmt.Errorf("TOP_K_DEFAULT must be positive and TOP_K_MAX >= TOP_K_DEFAULT")
	}

	// Create the data directory for the SQLite file (notes always live there,
	// and the embedded vector backend shares it).
	dataDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns a default value.
func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return n, nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", raw)
	}
}
