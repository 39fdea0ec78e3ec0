// Package store is the durable status store for jobs and their stages.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/videogen/orchestrator/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All job, stage, and API key state goes
// through here. Implementations must serialize concurrent writes to the same
// job's stage list so the "all predecessors completed" check stays atomic
// with respect to dispatch decisions.
type Store interface {
	Ping(ctx context.Context) error

	// CreateJob persists a job and its full stage list in one step.
	CreateJob(ctx context.Context, job *models.Job, stages []*models.Stage) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus, opts ...JobUpdateOption) error

	// ListStages returns a job's stages in pipeline order.
	ListStages(ctx context.Context, jobID uuid.UUID) ([]*models.Stage, error)
	GetStage(ctx context.Context, jobID uuid.UUID, name models.StageName) (*models.Stage, error)
	// ClaimStage transitions a stage from pending to running and records
	// started_at. Returns false without error when the stage is not pending,
	// which makes dispatch idempotent and prevents the double-dispatch race.
	ClaimStage(ctx context.Context, jobID uuid.UUID, name models.StageName) (bool, error)
	UpdateStage(ctx context.Context, jobID uuid.UUID, name models.StageName, update StageUpdate) error
	// SkipPendingStages marks the named stages skipped, touching only those
	// still pending. Used for failure propagation and cancellation.
	SkipPendingStages(ctx context.Context, jobID uuid.UUID, names []models.StageName, reason string) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

// StageUpdate carries the mutable fields of a stage. Nil fields are left
// untouched.
type StageUpdate struct {
	Status          *models.StageStatus
	Progress        *int
	Attempts        *int
	PhaseData       json.RawMessage
	ErrorMessage    *string
	ErrorDetails    json.RawMessage
	CompletedAt     *time.Time
	DurationSeconds *int
}

type jobUpdateParams struct {
	ErrorMessage  *string
	FinalArtifact *string
	CompletedAt   *time.Time
}

type JobUpdateOption func(*jobUpdateParams)

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorMessage = &msg
	}
}

func WithFinalArtifact(ref string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.FinalArtifact = &ref
	}
}

func WithCompletedAt(t time.Time) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.CompletedAt = &t
	}
}
