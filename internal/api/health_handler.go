package api

import (
	"context"
	"net/http"
	"sort"
)

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

// HealthzHandler handles GET /healthz. The process is live if it can answer.
func HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler handles GET /readyz. It runs every check and answers 503
// with the names of the failing ones if any fail.
func ReadyzHandler(checks map[string]Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var failed []string
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				failed = append(failed, name)
			}
		}

		if len(failed) > 0 {
			sort.Strings(failed)
			w.Header().Set("Retry-After", "30")
			respondJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "unavailable",
				"failed": failed,
			})
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
