package main

import (
	"context"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"

	"docsage/internal/config"
	"docsage/internal/fetch"
	"docsage/internal/http"
	"docsage/internal/index"
	"docsage/internal/llm"
	"docsage/internal/notes"
	"docsage/internal/query"
	"docsage/internal/segmenter"
	"docsage/internal/storage"
	"docsage/internal/summary"
	"docsage/internal/vectorstore"
)

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	// Initialize database. Notes always live in SQLite; the embedded vector
	// backend shares the same file.
	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	ctx := context.Background()

	// Select vector backend
	var (
		store   vectorstore.Store
		backend string
	)
	switch cfg.VectorBackend {
	case "qdrant":
		qs, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
		if err != nil {
			log.Fatalf("Failed to create Qdrant client: %v", err)
		}
		store = qs
		backend = "managed"
	case "sqlite":
		store = vectorstore.NewSQLiteStore(db)
		backend = "local"
	default:
		log.Fatalf("Unknown vector backend %q", cfg.VectorBackend)
	}
	slog.Info("Vector store ready", "backend", cfg.VectorBackend)

	// Validate embedding client vector size (fail-fast)
	embedder := llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.LLMAPIKey, cfg.EmbeddingModel, cfg.VectorSize)
	testEmbeddings, err := embedder.EmbedTexts(ctx, []string{"test"})
	if err != nil {
		log.Fatalf("Failed to validate embedding client: %v", err)
	}
	if len(testEmbeddings) == 0 || len(testEmbeddings[0]) != cfg.VectorSize {
		log.Fatalf("Embedding vector size mismatch: expected %d, got %d", cfg.VectorSize, len(testEmbeddings[0]))
	}
	slog.Info("Embedding client validated", "vector_size", cfg.VectorSize)

	// Build the index pipeline
	downloader := fetch.NewDownloader(cfg.DocumentBaseURL, cfg.DownloadTimeout)
	seg := segmenter.New(cfg.SegmentTargetSize)
	manager := index.NewManager(store, embedder, downloader, seg, index.Config{
		Backend:        backend,
		Dimension:      cfg.VectorSize,
		Metric:         vectorstore.MetricCosine,
		EmbedBatchSize: cfg.EmbedBatchSize,
		EmbedRate:      cfg.EmbedRateLimit,
	})

	// Create LLM client (external service layer)
	llmClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)

	engine := query.NewEngine(store, embedder, llmClient)
	slog.Info("Query engine initialized")

	noteRepo := storage.NewNoteRepo(db)
	coordinator := notes.NewCoordinator(noteRepo, manager)

	summarizer := summary.NewSummarizer(downloader, llmClient)

	// Create router with dependencies
	deps := &http.Deps{
		IndexManager:     manager,
		QueryEngine:      engine,
		NotesCoordinator: coordinator,
		Summarizer:       summarizer,
		IndexPrefix:      cfg.IndexPrefix,
		NotesPrefix:      cfg.NotesPrefix,
		TopKDefault:      cfg.TopKDefault,
		TopKMax:          cfg.TopKMax,
	}
	router := http.NewRouter(deps)

	// Start API server
	addr := ":" + cfg.APIPort
	slog.Info("Starting API server", "addr", addr)
	slog.Debug("LLM configuration", "base_url", cfg.LLMBaseURL, "model", cfg.LLMModel)
	if err := nethttp.ListenAndServe(addr, router); err != nil {
		log.Fatalf("API server failed to start: %v", err)
	}
}
