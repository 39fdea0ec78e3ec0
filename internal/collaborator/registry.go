package collaborator

import (
	"context"
	"fmt"

	"github.com/videogen/orchestrator/pkg/models"
	"golang.org/x/sync/semaphore"
)

const defaultMaxConcurrent = 4

// Registry maps each stage to its collaborator and enforces a per-stage
// concurrency cap. The cap is admission control for the downstream generation
// services: stage dispatch blocks here rather than piling unbounded calls
// onto an external service.
type Registry struct {
	collabs map[models.StageName]models.Collaborator
	limits  map[models.StageName]*semaphore.Weighted
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		collabs: make(map[models.StageName]models.Collaborator),
		limits:  make(map[models.StageName]*semaphore.Weighted),
	}
}

// Register binds a collaborator to a stage with the given concurrency cap.
// maxConcurrent <= 0 applies the default. Not safe for concurrent use;
// registration happens once at startup.
func (r *Registry) Register(stage models.StageName, c models.Collaborator, maxConcurrent int64) {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	r.collabs[stage] = c
	r.limits[stage] = semaphore.NewWeighted(maxConcurrent)
}

// Get returns the collaborator bound to a stage.
func (r *Registry) Get(stage models.StageName) (models.Collaborator, bool) {
	c, ok := r.collabs[stage]
	return c, ok
}

// Invoke runs the stage's collaborator under its concurrency cap. The caller
// owns timeout enforcement via ctx; waiting for an admission slot also
// respects ctx.
func (r *Registry) Invoke(ctx context.Context, stage models.StageName, input models.StageInput) (*models.StageResult, error) {
	c, ok := r.collabs[stage]
	if !ok {
		return nil, NewFatal("unregistered", fmt.Errorf("no collaborator registered for stage %q", stage))
	}
	sem := r.limits[stage]
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, NewRetryable(ReasonTimeout, fmt.Errorf("waiting for %s slot: %w", stage, err))
	}
	defer sem.Release(1)

	return c.Invoke(ctx, input)
}
