package handler

import (
	"encoding/json"
	"net/http"

	"github.com/videogen/orchestrator/internal/api/response"
	"github.com/videogen/orchestrator/internal/orchestrator"
)

// NewProcessHandler returns an http.HandlerFunc for POST /api/v1/input/process.
// The input is validated synchronously; a failing input is rejected with 400
// and never enters the pipeline. On success the job is created and runs
// asynchronously.
func NewProcessHandler(v InputValidator, svc JobService) http.HandlerFunc {
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
				response.CodeProcessingError, "Failed to create processing job", nil)
			return
		}

		response.Accepted(w, processResponse{
			InputID: job.ID.String(),
			Status:  string(job.Status),
			Message: "processing started",
		})
	}
}

type processResponse struct {
	InputID string `json:"input_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}
