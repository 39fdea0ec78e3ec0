package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/videogen/orchestrator/internal/collaborator"
	"github.com/videogen/orchestrator/internal/pipeline"
	"github.com/videogen/orchestrator/internal/store"
	"github.com/videogen/orchestrator/pkg/models"
)

// Executor runs a single stage to a terminal state. Side effects are confined
// to StatusStore writes; it never touches sibling stages.
type Executor struct {
	store   store.Store
	collabs *collaborator.Registry
	graph   *pipeline.Graph
}

// NewExecutor creates a stage executor.
func NewExecutor(st store.Store, collabs *collaborator.Registry, graph *pipeline.Graph) *Executor {
	return &Executor{store: st, collabs: collabs, graph: graph}
}

// Execute claims the stage, invokes its collaborator with the declared
// timeout and retry budget, and records the outcome. Returns nil when the
// stage completed or was already claimed by another dispatcher; returns the
// terminal error when the stage failed or the job was cancelled.
func (e *Executor) Execute(ctx context.Context, job *models.Job, name models.StageName) error {
	def, ok := e.graph.Definition(name)
	if !ok {
		return fmt.Errorf("no definition for stage %q", name)
	}

	claimed, err := e.store.ClaimStage(ctx, job.ID, name)
	if err != nil {
		return fmt.Errorf("claiming stage %s: %w", name, err)
	}
	if !claimed {
		// Another dispatcher got here first; nothing to do.
		return nil
	}
	startedAt := time.Now().UTC()

	input, err := e.buildInput(ctx, job, name)
	if err != nil {
		e.markFailed(job, name, 0, collaborator.NewFatal("missing_input", err))
		return err
	}

	attempts := 0
	var result *models.StageResult
	operation := func() error {
		attempts++
		if attempts > 1 {
			_ = e.store.UpdateStage(context.Background(), job.ID, name,
				store.StageUpdate{Attempts: &attempts})
			slog.Info("retrying stage",
				"job_id", job.ID, "stage", name, "attempt", attempts)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, def.Timeout)
		defer cancel()

		res, invokeErr := e.collabs.Invoke(attemptCtx, name, input)
		if invokeErr != nil {
			// An attempt that ran out its declared timeout is retryable
			// regardless of how the collaborator reported it; the late
			// result, if any, is discarded.
			if attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
				return collaborator.NewRetryable(collaborator.ReasonTimeout, invokeErr)
			}
			if collaborator.IsRetryable(invokeErr) {
				return invokeErr
			}
			return backoff.Permanent(invokeErr)
		}
		result = res
		return nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = def.RetryBackoff
	expo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(def.MaxRetries)), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		if ctx.Err() != nil {
			// Job cancelled while this stage was in flight: the stage did
			// not run to an outcome, so it is skipped rather than failed.
			e.markSkipped(job, name, "job cancelled")
			return ctx.Err()
		}
		e.markFailed(job, name, attempts, err)
		return err
	}

	e.markCompleted(job, name, attempts, startedAt, result)
	return nil
}

// buildInput assembles the collaborator input: original text, target
// language, and the phase data of every declared predecessor. Predecessor
// results are fully written before the stage became eligible, so this read
// is consistent by construction.
func (e *Executor) buildInput(ctx context.Context, job *models.Job, name models.StageName) (models.StageInput, error) {
	def, _ := e.graph.Definition(name)
	input := models.StageInput{
		JobID:          job.ID,
		Stage:          name,
		Text:           job.InputText,
		TargetLanguage: job.TargetLanguage,
	}
	if len(def.Predecessors) == 0 {
		return input, nil
	}

	input.PriorResults = make(map[models.StageName]json.RawMessage, len(def.Predecessors))
	for _, pred := range def.Predecessors {
		st, err := e.store.GetStage(ctx, job.ID, pred)
		if err != nil {
			return input, fmt.Errorf("loading predecessor %s: %w", pred, err)
		}
		if st.Status != models.StageStatusCompleted {
			return input, fmt.Errorf("predecessor %s is %s, expected completed", pred, st.Status)
		}
		input.PriorResults[pred] = st.PhaseData
	}
	return input, nil
}

func (e *Executor) markCompleted(job *models.Job, name models.StageName, attempts int, startedAt time.Time, result *models.StageResult) {
	ctx := context.Background()
	now := time.Now().UTC()
	progress := 100
	duration := int(now.Sub(startedAt).Seconds())
	status := models.StageStatusCompleted

	if err := e.store.UpdateStage(ctx, job.ID, name, store.StageUpdate{
		Status:          &status,
		Progress:        &progress,
		Attempts:        &attempts,
		PhaseData:       result.Data,
		CompletedAt:     &now,
		DurationSeconds: &duration,
	}); err != nil {
		slog.Error("failed to persist stage completion",
			"job_id", job.ID, "stage", name, "error", err)
		return
	}

	if result.Artifact != nil {
		_ = e.store.UpdateJobStatus(ctx, job.ID, models.JobStatusProcessing,
			store.WithFinalArtifact(*result.Artifact))
	}

	slog.Info("stage completed",
		"job_id", job.ID, "stage", name, "attempts", attempts,
		"duration_seconds", duration)
}

func (e *Executor) markFailed(job *models.Job, name models.StageName, attempts int, err error) {
	ctx := context.Background()
	status := models.StageStatusFailed
	msg := err.Error()
	details, _ := json.Marshal(map[string]any{
		"reason":    collaborator.Reason(err),
		"retryable": collaborator.IsRetryable(err),
		"attempts":  attempts,
	})

	if updateErr := e.store.UpdateStage(ctx, job.ID, name, store.StageUpdate{
		Status:       &status,
		Attempts:     &attempts,
		ErrorMessage: &msg,
		ErrorDetails: details,
	}); updateErr != nil {
		slog.Error("failed to persist stage failure",
			"job_id", job.ID, "stage", name, "error", updateErr)
	}

	slog.Error("stage failed",
		"job_id", job.ID, "stage", name, "attempts", attempts,
		"reason", collaborator.Reason(err), "error", msg)
}

func (e *Executor) markSkipped(job *models.Job, name models.StageName, reason string) {
	ctx := context.Background()
	status := models.StageStatusSkipped

	if err := e.store.UpdateStage(ctx, job.ID, name, store.StageUpdate{
		Status:       &status,
		ErrorMessage: &reason,
	}); err != nil {
		slog.Error("failed to persist stage skip",
			"job_id", job.ID, "stage", name, "error", err)
	}
}
