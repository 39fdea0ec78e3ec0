package orchestrator

import (
	"context"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// JobHandle is the registry's view of one tracked job: a cancel hook for the
// job's scheduling context and a done channel closed when the job reaches a
// terminal state.
type JobHandle struct {
	ID     uuid.UUID
	cancel context.CancelFunc

	once sync.Once
	done chan struct{}
}

// Done is closed when the job's scheduling loop has finished.
func (h *JobHandle) Done() <-chan struct{} { return h.done }

func (h *JobHandle) markDone() {
	h.once.Do(func() { close(h.done) })
}

// Registry is the process-wide index of active and recent jobs. The LRU
// bound acts as the retention window: evicted jobs stay pollable from the
// store, they just can no longer be cancelled in-process.
type Registry struct {
	handles *lru.Cache[uuid.UUID, *JobHandle]
}

// NewRegistry creates a registry retaining up to capacity job handles.
func NewRegistry(capacity int) (*Registry, error) {
	handles, err := lru.New[uuid.UUID, *JobHandle](capacity)
	if err != nil {
		return nil, err
	}
	return &Registry{handles: handles}, nil
}

// Track registers a new job handle. Every submission gets its own handle:
// duplicate submissions are independent jobs, never deduplicated.
func (r *Registry) Track(id uuid.UUID, cancel context.CancelFunc) *JobHandle {
	h := &JobHandle{ID: id, cancel: cancel, done: make(chan struct{})}
	r.handles.Add(id, h)
	return h
}

// Lookup returns the handle for a tracked job.
func (r *Registry) Lookup(id uuid.UUID) (*JobHandle, bool) {
	return r.handles.Get(id)
}

// Cancel requests cancellation of a tracked job. Returns false when the job
// is not (or no longer) tracked.
func (r *Registry) Cancel(id uuid.UUID) bool {
	h, ok := r.handles.Get(id)
	if !ok {
		return false
	}
	h.cancel()
	return true
}

// Len returns the number of tracked jobs.
func (r *Registry) Len() int {
	return r.handles.Len()
}
