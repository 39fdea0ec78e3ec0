// Package orchestrator owns the job lifecycle: it creates jobs, walks the
// dependency graph, dispatches ready stages, and rolls stage outcomes up
// into an aggregate job status.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/videogen/orchestrator/internal/cache"
	"github.com/videogen/orchestrator/internal/pipeline"
	"github.com/videogen/orchestrator/internal/store"
	"github.com/videogen/orchestrator/pkg/models"
)

// ErrJobTerminal is returned when cancelling a job that already finished.
var ErrJobTerminal = errors.New("job already in a terminal state")

const statusCacheTTL = 30 * time.Minute

// Orchestrator sequences, parallelizes, and recovers multi-stage generation
// jobs. It performs no generative work itself.
type Orchestrator struct {
	store    store.Store
	cache    cache.Cache
	graph    *pipeline.Graph
	executor *Executor
	registry *Registry

	wg sync.WaitGroup
}

// New creates an Orchestrator.
func New(st store.Store, ca cache.Cache, graph *pipeline.Graph, executor *Executor, registry *Registry) *Orchestrator {
	return &Orchestrator{
		store:    st,
		cache:    ca,
		graph:    graph,
		executor: executor,
		registry: registry,
	}
}

// SubmitParams holds validated parameters for a job submission.
type SubmitParams struct {
	Text           string
	UserID         string
	SessionID      string
	TargetLanguage string
}

// Submit creates a job with all stages pending and starts its scheduling
// loop in the background. Returns immediately; the pipeline runs
// asynchronously and is pollable through Status from this point on.
func (o *Orchestrator) Submit(ctx context.Context, params SubmitParams) (*models.Job, error) {
	if strings.TrimSpace(params.Text) == "" {
		return nil, fmt.Errorf("input text is required")
	}
	lang := params.TargetLanguage
	if lang == "" {
		lang = "en"
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:             uuid.New(),
		InputText:      params.Text,
		UserID:         params.UserID,
		SessionID:      params.SessionID,
		TargetLanguage: lang,
		Status:         models.JobStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	stages := make([]*models.Stage, 0, len(o.graph.Order()))
	for _, name := range o.graph.Order() {
		stages = append(stages, &models.Stage{
			JobID:     job.ID,
			Name:      name,
			Status:    models.StageStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	if err := o.store.CreateJob(ctx, job, stages); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}
	_ = o.cache.SetJobStatus(ctx, job.ID, models.JobStatusPending, statusCacheTTL)

	// The scheduling loop outlives the submission request, so it runs on its
	// own cancellable context rather than the request's.
	jobCtx, cancel := context.WithCancel(context.Background())
	handle := o.registry.Track(job.ID, cancel)

	o.wg.Add(1)
	go o.runJob(jobCtx, handle, job)

	slog.Info("job submitted",
		"job_id", job.ID, "user_id", job.UserID, "session_id", job.SessionID,
		"text_length", len(job.InputText))
	return job, nil
}

// runJob is the per-job scheduling loop: find ready stages, dispatch them
// concurrently, re-evaluate on each completion, finish when nothing is
// running and nothing can become ready.
func (o *Orchestrator) runJob(ctx context.Context, handle *JobHandle, job *models.Job) {
	defer o.wg.Done()
	defer handle.markDone()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in job scheduling loop", "job_id", job.ID, "error", r)
			_ = o.store.UpdateJobStatus(context.Background(), job.ID, models.JobStatusFailed,
				store.WithErrorMessage(fmt.Sprintf("panic: %v", r)))
			_ = o.cache.SetJobStatus(context.Background(), job.ID, models.JobStatusFailed, statusCacheTTL)
		}
	}()

	events := make(chan models.StageName, len(o.graph.Order()))
	inFlight := 0
	started := false

	for {
		if ctx.Err() == nil {
			stages, err := o.store.ListStages(context.Background(), job.ID)
			if err != nil {
				slog.Error("failed to list stages", "job_id", job.ID, "error", err)
				break
			}
			statuses := make(map[models.StageName]models.StageStatus, len(stages))
			for _, st := range stages {
				statuses[st.Name] = st.Status
			}

			for _, name := range o.graph.ReadyStages(statuses) {
				if !started {
					started = true
					_ = o.store.UpdateJobStatus(context.Background(), job.ID, models.JobStatusProcessing)
					_ = o.cache.SetJobStatus(context.Background(), job.ID, models.JobStatusProcessing, statusCacheTTL)
				}
				inFlight++
				go func(stage models.StageName) {
					o.runStage(ctx, job, stage)
					events <- stage
				}(name)
			}
		}

		if inFlight == 0 {
			break
		}
		<-events
		inFlight--
	}

	o.finalize(job, ctx.Err() != nil)
}

// runStage executes one stage and, on terminal failure, marks every
// transitive dependent still pending as skipped. The loop itself never sees
// the error; failure propagates only through stage status.
func (o *Orchestrator) runStage(ctx context.Context, job *models.Job, name models.StageName) {
	err := o.executor.Execute(ctx, job, name)
	if err == nil || ctx.Err() != nil {
		return
	}
	downstream := o.graph.Downstream(name)
	if skipErr := o.store.SkipPendingStages(context.Background(), job.ID, downstream,
		fmt.Sprintf("predecessor %s failed", name)); skipErr != nil {
		slog.Error("failed to skip dependent stages",
			"job_id", job.ID, "stage", name, "error", skipErr)
	}
}

// finalize rolls stage outcomes up into the job's terminal status.
func (o *Orchestrator) finalize(job *models.Job, cancelled bool) {
	ctx := context.Background()

	if cancelled {
		remaining := o.graph.Order()
		_ = o.store.SkipPendingStages(ctx, job.ID, remaining, "job cancelled")
		now := time.Now().UTC()
		_ = o.store.UpdateJobStatus(ctx, job.ID, models.JobStatusCancelled,
			store.WithErrorMessage("job cancelled"), store.WithCompletedAt(now))
		_ = o.cache.SetJobStatus(ctx, job.ID, models.JobStatusCancelled, statusCacheTTL)
		slog.Info("job cancelled", "job_id", job.ID)
		return
	}

	stages, err := o.store.ListStages(ctx, job.ID)
	if err != nil {
		slog.Error("failed to finalize job", "job_id", job.ID, "error", err)
		return
	}

	allCompleted := true
	var failed *models.Stage
	for _, st := range stages {
		if st.Status != models.StageStatusCompleted {
			allCompleted = false
		}
		if st.Status == models.StageStatusFailed && failed == nil {
			failed = st
		}
	}

	now := time.Now().UTC()
	switch {
	case allCompleted:
		_ = o.store.UpdateJobStatus(ctx, job.ID, models.JobStatusCompleted,
			store.WithCompletedAt(now))
		_ = o.cache.SetJobStatus(ctx, job.ID, models.JobStatusCompleted, statusCacheTTL)
		slog.Info("job completed", "job_id", job.ID)
	case failed != nil:
		msg := fmt.Sprintf("stage %s failed", failed.Name)
		if failed.ErrorMessage != nil {
			msg = fmt.Sprintf("stage %s failed: %s", failed.Name, *failed.ErrorMessage)
		}
		_ = o.store.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed,
			store.WithErrorMessage(msg), store.WithCompletedAt(now))
		_ = o.cache.SetJobStatus(ctx, job.ID, models.JobStatusFailed, statusCacheTTL)
		slog.Info("job failed", "job_id", job.ID, "failed_stage", failed.Name)
	default:
		// No failure and not all completed means the loop stalled; surface
		// it rather than leaving the job processing forever.
		_ = o.store.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed,
			store.WithErrorMessage("scheduling stalled with no runnable stages"),
			store.WithCompletedAt(now))
		_ = o.cache.SetJobStatus(ctx, job.ID, models.JobStatusFailed, statusCacheTTL)
		slog.Error("job stalled", "job_id", job.ID)
	}
}

// Cancel stops a job's scheduling loop, skips its unfinished stages, and
// marks it cancelled. In-flight collaborator calls are abandoned best-effort;
// their late results are discarded.
func (o *Orchestrator) Cancel(ctx context.Context, jobID uuid.UUID) error {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return ErrJobTerminal
	}

	if handle, ok := o.registry.Lookup(jobID); ok {
		handle.cancel()
		select {
		case <-handle.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}

	// Not tracked (e.g. submitted before a restart): settle state directly.
	_ = o.store.SkipPendingStages(ctx, jobID, o.graph.Order(), "job cancelled")
	now := time.Now().UTC()
	if err := o.store.UpdateJobStatus(ctx, jobID, models.JobStatusCancelled,
		store.WithErrorMessage("job cancelled"), store.WithCompletedAt(now)); err != nil {
		return err
	}
	_ = o.cache.SetJobStatus(ctx, jobID, models.JobStatusCancelled, statusCacheTTL)
	return nil
}

// PipelineStages returns the stage names in declared pipeline order.
func (o *Orchestrator) PipelineStages() []models.StageName {
	return o.graph.Order()
}

// EstimatedDuration is the nominal end-to-end duration hint for a new job.
func (o *Orchestrator) EstimatedDuration() time.Duration {
	return o.graph.EstimatedDuration()
}

// Drain blocks until every tracked job's scheduling loop has finished or the
// context expires. Used during graceful shutdown.
func (o *Orchestrator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
