package models

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// Collaborator is the uniform interface every external generation service
// implements. The orchestrator never inspects collaborator internals; it only
// interprets the retryable flag on returned errors and elapsed time against
// the stage's declared timeout. Never call generation services directly —
// always inject this interface.
type Collaborator interface {
	// Invoke runs one stage attempt. Implementations must honor ctx
	// cancellation; a late result from an abandoned attempt is discarded.
	Invoke(ctx context.Context, input StageInput) (*StageResult, error)
	// Name returns the collaborator identifier (e.g. "scene-analysis-http").
	Name() string
}

// StageInput is the value handed to a collaborator for one stage attempt.
type StageInput struct {
	JobID          uuid.UUID                     `json:"job_id,omitempty"`
	Stage          StageName                     `json:"stage"`
	Text           string                        `json:"text,omitempty"`
	TargetLanguage string                        `json:"target_language,omitempty"`
	// PriorResults carries the phase data of every completed predecessor,
	// keyed by stage name. Populated before dispatch, never mutated after.
	PriorResults map[StageName]json.RawMessage `json:"prior_results,omitempty"`
	// Payload carries a caller-supplied request body for direct,
	// single-stage invocations through the REST surface.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// StageResult is the structured output a collaborator returns. Data is merged
// into the owning stage's phase data and projected forward as downstream
// input; its internal shape (quality scores, consistency keys, clip URLs) is
// opaque to the orchestrator.
type StageResult struct {
	Data json.RawMessage `json:"data"`
	// Artifact optionally references a produced artifact, e.g. the composed
	// video URL from the composition stage.
	Artifact *string `json:"artifact,omitempty"`
}
