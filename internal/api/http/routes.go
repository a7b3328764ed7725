package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pmwatch/internal/api/http/mw"
)

func BuildRouter(
	api *API,
	metricsHandler http.Handler,
	logMW *mw.LoggingMiddleware,
	rateLimitMW *mw.RateLimitMiddleware,
) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	if logMW != nil {
		r.Use(logMW.Handler)
	}

	// tech endpoints, no rate limit
	r.Get("/healthz", api.Healthz)
	r.Get("/readiness", api.Readiness)
	if metricsHandler != nil {
		r.Mount("/metrics", metricsHandler)
	}

	public := chi.NewRouter()
	if rateLimitMW != nil {
		public.Use(rateLimitMW.Handler)
	}
	public.Get("/alerts.json", api.AlertsDocument)
	public.Get("/alerts.jsonl", api.AlertsJSONL)
	public.Route("/api", func(apiR chi.Router) {
		apiR.Get("/alerts", api.Alerts)
	})

	r.Mount("/", public)
	return r
}
