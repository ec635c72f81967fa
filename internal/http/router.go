package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docsage/internal/handlers"
	"docsage/internal/index"
	"docsage/internal/notes"
	"docsage/internal/query"
	"docsage/internal/summary"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	IndexManager     *index.Manager
	QueryEngine      *query.Engine
	NotesCoordinator *notes.Coordinator
	Summarizer       *summary.Summarizer
	IndexPrefix      string
	NotesPrefix      string
	TopKDefault      int
	TopKMax          int
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(LoggerMiddleware)
	r.Use(CORS)
	r.Use(Metrics)

	indexHandler := handlers.NewIndexHandler(deps.IndexManager, deps.IndexPrefix)
	queryHandler := handlers.NewQueryHandler(deps.QueryEngine, deps.IndexPrefix, deps.NotesPrefix, deps.TopKDefault, deps.TopKMax)
	notesHandler := handlers.NewNotesHandler(deps.NotesCoordinator, deps.NotesPrefix)
	summaryHandler := handlers.NewSummaryHandler(deps.Summarizer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/index/exists", indexHandler.Exists)
		r.Post("/index/build", indexHandler.Build)
		r.Post("/index/reload", indexHandler.Reload)

		r.Post("/query", queryHandler.Ask)
		r.Post("/query/stream", queryHandler.Stream)

		r.Get("/notes", notesHandler.Fetch)
		r.Post("/notes", notesHandler.Save)
		r.Post("/notes/index", notesHandler.Index)

		r.Post("/summarize", summaryHandler.Generate)
	})

	r.Get("/healthz", handlers.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
