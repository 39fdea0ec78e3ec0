// Package handler contains the HTTP handlers for the orchestrator API. Each
// handler is a closure over the narrow interface it depends on.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/videogen/orchestrator/internal/api/response"
	"github.com/videogen/orchestrator/pkg/models"
)

// InputValidator runs the synchronous validation checks against input text.
type InputValidator interface {
	Validate(text string) models.ValidationResult
}

// NewValidateHandler returns an http.HandlerFunc for POST /api/v1/input/validate.
// Validation is synchronous and never retried; the result is returned whether
// or not the input passed.
func NewValidateHandler(v InputValidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string `json:"text"`
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

		response.JSON(w, v.Validate(req.Text))
	}
}
