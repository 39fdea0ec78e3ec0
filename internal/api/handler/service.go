package handler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/videogen/orchestrator/internal/orchestrator"
	"github.com/videogen/orchestrator/pkg/models"
)

// JobService is the orchestration surface the handlers depend on.
type JobService interface {
	Submit(ctx context.Context, params orchestrator.SubmitParams) (*models.Job, error)
	Status(ctx context.Context, jobID uuid.UUID, detailed bool) (*orchestrator.JobStatusView, error)
	Cancel(ctx context.Context, jobID uuid.UUID) error
	PipelineStages() []models.StageName
	EstimatedDuration() time.Duration
}
