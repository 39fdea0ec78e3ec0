package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/videogen/orchestrator/pkg/models"
)

// JobStatusView is the aggregate, pollable view of one job. Polling is
// idempotent and side-effect-free: repeated calls with no underlying stage
// change return identical results.
type JobStatusView struct {
	InputID            uuid.UUID         `json:"input_id"`
	Status             models.JobStatus  `json:"status"`
	CurrentPhase       *models.StageName `json:"current_phase,omitempty"`
	ProgressPercentage int               `json:"progress_percentage"`
	FinalArtifact      *string           `json:"final_artifact,omitempty"`
	ErrorMessage       *string           `json:"error_message,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
	CompletedAt        *time.Time        `json:"completed_at,omitempty"`
	Phases             []*models.Stage   `json:"phases,omitempty"`
}

// Status returns the last-known aggregate state of a job. With detailed set,
// the full ordered stage list with timestamps and phase data is included.
// Returns store.ErrNotFound for an unknown job id.
func (o *Orchestrator) Status(ctx context.Context, jobID uuid.UUID, detailed bool) (*JobStatusView, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	stages, err := o.store.ListStages(ctx, jobID)
	if err != nil {
		return nil, err
	}

	view := &JobStatusView{
		InputID:       job.ID,
		Status:        job.Status,
		FinalArtifact: job.FinalArtifact,
		ErrorMessage:  job.ErrorMessage,
		CreatedAt:     job.CreatedAt,
		UpdatedAt:     job.UpdatedAt,
		CompletedAt:   job.CompletedAt,
	}
	view.CurrentPhase, view.ProgressPercentage = aggregateProgress(o.graph.Order(), stages)
	if detailed {
		view.Phases = stages
	}
	return view, nil
}

// aggregateProgress picks the furthest stage in pipeline order that is
// running or completed; the reported percentage is that stage's own
// progress. A job with nothing started reports no phase and zero progress.
func aggregateProgress(order []models.StageName, stages []*models.Stage) (*models.StageName, int) {
	byName := make(map[models.StageName]*models.Stage, len(stages))
	for _, st := range stages {
		byName[st.Name] = st
	}

	var current *models.Stage
	for _, name := range order {
		st, ok := byName[name]
		if !ok {
			continue
		}
		if st.Status == models.StageStatusRunning || st.Status == models.StageStatusCompleted {
			current = st
		}
	}
	if current == nil {
		return nil, 0
	}
	name := current.Name
	return &name, current.ProgressPercentage
}
