// Package models contains shared data models used across the orchestrator codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the closed set of job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether the job can no longer change state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Job tracks one end-to-end video generation request. The API returns a job ID
// on POST /api/v1/input/process; the client polls GET /api/v1/input/status/{id}
// until the status is terminal.
type Job struct {
	ID             uuid.UUID  `db:"id"              json:"id"`
	InputText      string     `db:"input_text"      json:"input_text"`
	UserID         string     `db:"user_id"         json:"user_id"`
	SessionID      string     `db:"session_id"      json:"session_id,omitempty"`
	TargetLanguage string     `db:"target_language" json:"target_language"`
	Status         JobStatus  `db:"status"          json:"status"`
	FinalArtifact  *string    `db:"final_artifact"  json:"final_artifact,omitempty"`
	ErrorMessage   *string    `db:"error_message"   json:"error_message,omitempty"`
	CreatedAt      time.Time  `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"      json:"updated_at"`
	CompletedAt    *time.Time `db:"completed_at"    json:"completed_at,omitempty"`
}
