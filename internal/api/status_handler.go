package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sungwon/lease-worker/internal/journal"
	"github.com/sungwon/lease-worker/internal/supervisor"
)

// ActiveCounter reports running supervisions.
type ActiveCounter interface {
	Active() int
}

// InFlightCounter reports running handler invocations.
type InFlightCounter interface {
	InFlight() int
}

// OutcomeLister looks up journaled outcomes for a message.
type OutcomeLister interface {
	ListByMessage(ctx context.Context, messageID string) ([]journal.Entry, error)
}

type supervisorsResponse struct {
	Active        int    `json:"active"`
	HandlersBusy  int    `json:"handlers_in_flight"`
	LeaseDuration string `json:"lease_duration"`
	CheckInterval string `json:"check_interval"`
	MaxChecks     int    `json:"max_checks"`
}

// SupervisorsHandler handles GET /api/v1/supervisors.
func SupervisorsHandler(active ActiveCounter, handlers InFlightCounter, cfg supervisor.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, supervisorsResponse{
			Active:        active.Active(),
			HandlersBusy:  handlers.InFlight(),
			LeaseDuration: cfg.LeaseDuration.String(),
			CheckInterval: cfg.CheckInterval.String(),
			MaxChecks:     cfg.MaxChecks,
		})
	}
}

type outcomeResponse struct {
	CorrelationID string    `json:"correlation_id"`
	QueueRef      string    `json:"queue_ref"`
	State         string    `json:"state"`
	Cause         string    `json:"cause,omitempty"`
	ReceiveCount  int       `json:"receive_count"`
	Extensions    int       `json:"extensions"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// OutcomesHandler handles GET /api/v1/messages/{id}/outcomes. Every
// supervision of a message, including ones after redelivery, is listed.
func OutcomesHandler(outcomes OutcomeLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			respondError(w, http.StatusBadRequest, "message id is required")
			return
		}

		entries, err := outcomes.ListByMessage(r.Context(), id)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to read outcomes")
			return
		}
		if len(entries) == 0 {
			respondError(w, http.StatusNotFound, "no outcomes recorded for message")
			return
		}

		resp := make([]outcomeResponse, 0, len(entries))
		for _, e := range entries {
			resp = append(resp, outcomeResponse{
				CorrelationID: e.CorrelationID,
				QueueRef:      e.QueueRef,
				State:         e.State,
				Cause:         e.Cause,
				ReceiveCount:  e.ReceiveCount,
				Extensions:    e.Extensions,
				StartedAt:     e.StartedAt,
				FinishedAt:    e.FinishedAt,
			})
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"message_id": id,
			"outcomes":   resp,
		})
	}
}
