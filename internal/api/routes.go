package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"jobkernel/internal/delivery"
	"jobkernel/internal/facade"
	"jobkernel/internal/health"
	"jobkernel/internal/job"
	"jobkernel/internal/observability"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Jobs          *job.Service
	Events        delivery.Subscriptions // job store; source of the event stream
	EventBuilder  *job.EventBuilder      // renders streamed events as CloudEvents
	Webhooks      *delivery.Registry
	Kernel        *facade.Facade
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	APIKey        string
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	h := NewHandler(cfg)

	r := chi.NewRouter()

	// Middleware order: outermost first
	r.Use(RecoveryMiddleware())
	r.Use(middleware.RequestID)
	r.Use(LoggingMiddleware())
	if cfg.Metrics != nil {
		r.Use(MetricsMiddleware(cfg.Metrics))
	}
	r.Use(CORSMiddleware())
	r.Use(ContentTypeMiddleware())

	// Health check endpoints (liveness/readiness probes) - no auth required
	r.Get("/livez", h.Livez)
	r.Get("/readyz", h.Readyz)

	r.Route("/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.APIKey))

		r.Post("/jobs", h.CreateJob)
		r.Get("/jobs", h.ListJobs)
		r.Get("/jobs/{jobId}", h.GetJob)

		r.Get("/events", h.StreamEvents)

		r.Post("/subscriptions", h.CreateSubscription)
		r.Get("/subscriptions", h.ListSubscriptions)
		r.Delete("/subscriptions/{id}", h.DeleteSubscription)

		r.Get("/images", h.ListImages)
		r.Post("/containers", h.CreateContainer)
		r.Post("/containers/{id}/start", h.StartContainer)
		r.Post("/containers/{id}/stop", h.StopContainer)
		r.Delete("/containers/{id}", h.RemoveContainer)
		r.Get("/containers/{id}/logs", h.ContainerLogs)
	})

	return r
}
