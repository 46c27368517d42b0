package httpapi

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/buildbeaver/docflow/internal/logger"
)

// Deps bundles what NewRouter needs from the orchestrator; Pipeline must
// also satisfy EventSubscriber (internal/pipeline.Pipeline does).
type Deps struct {
	Jobs   Pipeline
	Events EventSubscriber
}

// NewRouter builds the chi router for the job command shell and event
// sink, using a standard request-ID/recoverer/logger/CORS middleware
// stack. There's no session or shared-secret auth layer: this is a local
// dev/ops surface, not a multi-tenant public API.
func NewRouter(deps Deps, logFactory logger.LogFactory) chi.Router {
	jobAPI := NewJobAPI(deps.Jobs, logFactory)
	eventsAPI := NewEventsAPI(deps.Events, logFactory)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			// The event stream below is long-lived; only the command
			// routes get a request timeout.
			r.Use(middleware.Timeout(60 * time.Second))
			r.Get("/", jobAPI.List)
			r.Post("/", jobAPI.Create)
			r.Route("/{jobID}", func(r chi.Router) {
				r.Get("/", jobAPI.Get)
				r.Delete("/", jobAPI.Delete)
				r.Post("/process", jobAPI.Process)
				r.Post("/resume", jobAPI.Resume)
				r.Post("/cancel", jobAPI.Cancel)
				r.Post("/revert", jobAPI.Revert)
			})
		})
		r.Get("/events", eventsAPI.Stream)
	})
	return r
}
