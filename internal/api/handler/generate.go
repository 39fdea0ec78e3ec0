package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/videogen/orchestrator/internal/api/response"
	"github.com/videogen/orchestrator/internal/orchestrator"
	"github.com/videogen/orchestrator/internal/store"
	"github.com/videogen/orchestrator/pkg/models"
)

type generateResponse struct {
	GenerationID        string             `json:"generation_id"`
	Status              string             `json:"status"`
	EstimatedCompletion time.Time          `json:"estimated_completion"`
	WorkflowStages      []models.StageName `json:"workflow_stages"`
}

// NewGenerateVideoHandler returns an http.HandlerFunc for
// POST /api/v1/generate/video. It runs the same pipeline as /input/process
// but answers in the generation-workflow shape.
func NewGenerateVideoHandler(v InputValidator, svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text           string `json:"text"`
			UserID         string `json:"user_id"`
			SessionID      string `json:"session_id"`
			TargetLanguage string `json:"target_language"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest,
				response.CodeValidationError, "Invalid JSON body", nil)
			return
		}
		if req.Text == "" {
			response.Error(w, http.StatusBadRequest,
				response.CodeValidationError, "text is required", nil)
			return
		}

		result := v.Validate(req.Text)
		if !result.IsValid {
			response.Error(w, http.StatusBadRequest,
				response.CodeValidationError, "Input validation failed",
				map[string]any{"errors": result.Errors, "warnings": result.Warnings})
			return
		}

		job, err := svc.Submit(r.Context(), orchestrator.SubmitParams{
			Text:           req.Text,
			UserID:         req.UserID,
			SessionID:      req.SessionID,
			TargetLanguage: req.TargetLanguage,
		})
		if err != nil {
			response.Error(w, http.StatusInternalServerError,
				response.CodeProcessingError, "Failed to start generation workflow", nil)
			return
		}

		response.Accepted(w, generateResponse{
			GenerationID:        job.ID.String(),
			Status:              string(job.Status),
			EstimatedCompletion: time.Now().UTC().Add(svc.EstimatedDuration()),
			WorkflowStages:      svc.PipelineStages(),
		})
	}
}

type generationStatusResponse struct {
	GenerationID       string     `json:"generation_id"`
	Status             string     `json:"status"`
	CurrentPhase       *string    `json:"current_phase,omitempty"`
	ProgressPercentage int        `json:"progress_percentage"`
	VideoURL           *string    `json:"video_url,omitempty"`
	ErrorMessage       *string    `json:"error_message,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

// NewGenerationStatusHandler returns an http.HandlerFunc for
// GET /api/v1/generate/video/{generationID}. Once the workflow completes the
// response carries the final video reference.
func NewGenerationStatusHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "generationID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest,
				response.CodeValidationError, "generation_id must be a valid UUID", nil)
			return
		}

		view, err := svc.Status(r.Context(), id, false)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound,
					response.CodeNotFound, "No generation workflow found for the given id", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError,
				response.CodeProcessingError, "Failed to load generation status", nil)
			return
		}

		resp := generationStatusResponse{
			GenerationID:       view.InputID.String(),
			Status:             string(view.Status),
			ProgressPercentage: view.ProgressPercentage,
			ErrorMessage:       view.ErrorMessage,
			CompletedAt:        view.CompletedAt,
		}
		if view.CurrentPhase != nil {
			phase := string(*view.CurrentPhase)
			resp.CurrentPhase = &phase
		}
		if view.Status == models.JobStatusCompleted {
			resp.VideoURL = view.FinalArtifact
		}

		response.JSON(w, resp)
	}
}
