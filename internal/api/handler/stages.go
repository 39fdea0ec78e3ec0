package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/videogen/orchestrator/internal/api/response"
	"github.com/videogen/orchestrator/internal/collaborator"
	"github.com/videogen/orchestrator/pkg/models"
)

// StageInvoker runs a single collaborator under its concurrency cap.
type StageInvoker interface {
	Invoke(ctx context.Context, stage models.StageName, input models.StageInput) (*models.StageResult, error)
}

// NewStageInvokeHandler returns an http.HandlerFunc that calls one
// collaborator directly, outside any pipeline job. The request body is passed
// through as the collaborator payload; text and target_language are lifted
// out when present.
func NewStageInvokeHandler(inv StageInvoker, stage models.StageName, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			response.Error(w, http.StatusBadRequest,
				response.CodeValidationError, "Failed to read request body", nil)
			return
		}
		if len(body) == 0 {
			body = []byte("{}")
		}

		var req struct {
			Text           string `json:"text"`
			TargetLanguage string `json:"target_language"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			response.Error(w, http.StatusBadRequest,
				response.CodeValidationError, "Invalid JSON body", nil)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		result, err := inv.Invoke(ctx, stage, models.StageInput{
			JobID:          uuid.New(),
			Stage:          stage,
			Text:           req.Text,
			TargetLanguage: req.TargetLanguage,
			Payload:        body,
		})
		if err != nil {
			writeCollaboratorError(w, stage, err)
			return
		}

		writeRawJSON(w, result.Data)
	}
}

// NewConsistencyCheckHandler returns an http.HandlerFunc for
// GET /api/v1/character/consistency/{referenceID}. The check is routed to the
// character generation collaborator as a consistency_check action.
func NewConsistencyCheckHandler(inv StageInvoker, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		referenceID := chi.URLParam(r, "referenceID")
		if referenceID == "" {
			response.Error(w, http.StatusBadRequest,
				response.CodeValidationError, "reference id is required", nil)
			return
		}

		payload, _ := json.Marshal(map[string]string{
			"action":       "consistency_check",
			"reference_id": referenceID,
		})

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		result, err := inv.Invoke(ctx, models.StageCharacterGeneration, models.StageInput{
			JobID:   uuid.New(),
			Stage:   models.StageCharacterGeneration,
			Payload: payload,
		})
		if err != nil {
			writeCollaboratorError(w, models.StageCharacterGeneration, err)
			return
		}

		writeRawJSON(w, result.Data)
	}
}

func writeCollaboratorError(w http.ResponseWriter, stage models.StageName, err error) {
	reason := collaborator.Reason(err)
	switch {
	case reason == collaborator.ReasonTimeout:
		response.Error(w, http.StatusServiceUnavailable,
			response.CodeServiceUnavailable, "The "+string(stage)+" service timed out", nil)
	case collaborator.IsRetryable(err):
		response.Error(w, http.StatusServiceUnavailable,
			response.CodeServiceUnavailable, "The "+string(stage)+" service is unavailable", nil)
	default:
		response.Error(w, http.StatusInternalServerError,
			response.CodeProcessingError, "The "+string(stage)+" service failed",
			map[string]string{"reason": reason})
	}
}

func writeRawJSON(w http.ResponseWriter, data json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
