package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/outreach-engine/internal/pkg/httputil"
)

// SetupRoutes configures the router: webhook ingest under /webhooks and the
// organization-scoped admin API under /api.
func SetupRoutes(s *Server) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Organization-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealthCheck)

	if s.webhooks != nil {
		r.Mount("/webhooks", s.webhooks.Routes())
	}

	r.Route("/api", func(r chi.Router) {
		// Every admin route needs an organization scope.
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				if orgID(req) == "" {
					httputil.BadRequest(w, "organization scope required (X-Organization-ID header or org_id query)")
					return
				}
				next.ServeHTTP(w, req)
			})
		})

		r.Route("/suppressions", func(r chi.Router) {
			r.Get("/", s.handleListSuppressions)
			r.Post("/", s.handleAddSuppression)
			r.Get("/stats", s.handleSuppressionStats)
			r.Get("/check", s.handleCheckSuppression)
			r.Delete("/{email}", s.handleRemoveSuppression)
		})

		r.Route("/leads/{leadID}", func(r chi.Router) {
			r.Get("/", s.handleGetLead)
			r.Get("/events", s.handleAvailableEvents)
			r.Post("/events", s.handleApplyEvent)
			r.Post("/override", s.handleOverride)
		})

		r.Route("/abtests", func(r chi.Router) {
			r.Post("/evaluate", s.handleEvaluateNow)
			r.Post("/{testID}/reset", s.handleResetTest)
			r.Put("/{testID}/weights", s.handleSetWeights)
		})

		r.Route("/inboxes/{inboxID}/health", func(r chi.Router) {
			r.Get("/", s.handleInboxHealth)
			r.Delete("/", s.handleResetInboxHealth)
		})
	})

	return r
}
