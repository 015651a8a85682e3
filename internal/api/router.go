// Package api serves the worker's ops endpoints.
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sungwon/lease-worker/internal/auth"
	"github.com/sungwon/lease-worker/internal/supervisor"
)

// Deps are the components the ops endpoints report on. Outcomes may be nil
// when no journal is configured; Checks may be empty. A non-empty
// APIKeyHash puts /api/v1 behind bearer authentication.
type Deps struct {
	Supervisors ActiveCounter
	Handlers    InFlightCounter
	Lease       supervisor.Config
	Outcomes    OutcomeLister
	Checks      map[string]Check
	APIKeyHash  string
}

// NewRouter creates the ops router.
func NewRouter(deps Deps, log zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(CorrelationIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(RecoverMiddleware(log))

	r.Get("/healthz", HealthzHandler())
	r.Get("/readyz", ReadyzHandler(deps.Checks))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if deps.APIKeyHash != "" {
			r.Use(auth.BearerAuth(deps.APIKeyHash))
		}
		r.Get("/supervisors", SupervisorsHandler(deps.Supervisors, deps.Handlers, deps.Lease))
		if deps.Outcomes != nil {
			r.Get("/messages/{id}/outcomes", OutcomesHandler(deps.Outcomes))
		}
	})

	return r
}
