package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"portraits/internal/http/handlers"
	"portraits/internal/infra"
	"portraits/internal/middleware"
)

// NewRouter assembles the exposed API surface.
func NewRouter(app *handlers.App, logger infra.Logger, corsOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.CORS(corsOrigins),
		middleware.Logger(logger),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/styles", app.StylesList)

	r.Route("/v1/portraits", func(r chi.Router) {
		r.Post("/", app.PortraitsCreate)
		r.Get("/{job_id}", app.PortraitStatus)
	})

	return r
}
