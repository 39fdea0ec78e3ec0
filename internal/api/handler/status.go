package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/videogen/orchestrator/internal/api/response"
	"github.com/videogen/orchestrator/internal/orchestrator"
	"github.com/videogen/orchestrator/internal/store"
)

// NewStatusHandler returns an http.HandlerFunc for
// GET /api/v1/input/status/{inputID}. With ?detailed=true the response
// includes the full per-phase breakdown.
func NewStatusHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "inputID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest,
				response.CodeValidationError, "input_id must be a valid UUID", nil)
			return
		}

		detailed := r.URL.Query().Get("detailed") == "true"

		view, err := svc.Status(r.Context(), id, detailed)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound,
					response.CodeNotFound, "No processing job found for the given input_id", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError,
				response.CodeProcessingError, "Failed to load job status", nil)
			return
		}

		response.JSON(w, view)
	}
}

// NewCancelHandler returns an http.HandlerFunc for DELETE /api/v1/input/{inputID}.
// Cancelling an already-finished job is a conflict, not an error in the job.
func NewCancelHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "inputID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest,
				response.CodeValidationError, "input_id must be a valid UUID", nil)
			return
		}

		if err := svc.Cancel(r.Context(), id); err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				response.Error(w, http.StatusNotFound,
					response.CodeNotFound, "No processing job found for the given input_id", nil)
			case errors.Is(err, orchestrator.ErrJobTerminal):
				response.Error(w, http.StatusConflict,
					response.CodeProcessingError, "Job already in a terminal state", nil)
			default:
				response.Error(w, http.StatusInternalServerError,
					response.CodeProcessingError, "Failed to cancel job", nil)
			}
			return
		}

		response.JSON(w, map[string]string{
			"input_id": id.String(),
			"status":   "cancelled",
		})
	}
}
