package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// StageName identifies one node of the generation pipeline.
type StageName string

const (
	StageValidation          StageName = "validation"
	StageLanguageDetection   StageName = "language_detection"
	StageTranslation         StageName = "translation"
	StageSceneAnalysis       StageName = "scene_analysis"
	StageStoryboard          StageName = "storyboard"
	StageCharacterGeneration StageName = "character_generation"
	StageKeyframeGeneration  StageName = "keyframe_generation"
	StageVideoGeneration     StageName = "video_generation"
	StageVoiceoverGeneration StageName = "voiceover_generation"
	StageComposition         StageName = "composition"
)

// StageStatus is the closed set of stage lifecycle states.
// Transitions are monotonic: pending -> running -> {completed | failed};
// failed may re-enter running only through a bounded retry, and pending
// stages whose predecessor failed become skipped, never failed.
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusCompleted StageStatus = "completed"
	StageStatusFailed    StageStatus = "failed"
	StageStatusSkipped   StageStatus = "skipped"
)

// Terminal reports whether the stage can no longer change state.
func (s StageStatus) Terminal() bool {
	return s == StageStatusCompleted || s == StageStatusFailed || s == StageStatusSkipped
}

// Stage is one node in a job's instance of the dependency graph.
// A Stage belongs to exactly one Job and is mutated only by the stage
// executor that runs it.
type Stage struct {
	JobID              uuid.UUID       `db:"job_id"              json:"job_id"`
	Name               StageName       `db:"name"                json:"name"`
	Status             StageStatus     `db:"status"              json:"status"`
	ProgressPercentage int             `db:"progress_percentage" json:"progress_percentage"`
	Attempts           int             `db:"attempts"            json:"attempts"`
	PhaseData          json.RawMessage `db:"phase_data"          json:"phase_data,omitempty"`
	ErrorMessage       *string         `db:"error_message"       json:"error_message,omitempty"`
	ErrorDetails       json.RawMessage `db:"error_details"       json:"error_details,omitempty"`
	StartedAt          *time.Time      `db:"started_at"          json:"started_at,omitempty"`
	CompletedAt        *time.Time      `db:"completed_at"        json:"completed_at,omitempty"`
	DurationSeconds    *int            `db:"duration_seconds"    json:"duration_seconds,omitempty"`
	CreatedAt          time.Time       `db:"created_at"          json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at"          json:"updated_at"`
}
