package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/videogen/orchestrator/pkg/models"
)

// MemoryStore is a process-local Store used by unit tests and single-node
// deployments without Postgres. A per-job mutex serializes stage writes, so
// claim checks stay atomic with dispatch decisions.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*jobRecord
	keys map[uuid.UUID]*models.APIKey
}

type jobRecord struct {
	mu     sync.Mutex
	job    models.Job
	stages []*models.Stage
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[uuid.UUID]*jobRecord),
		keys: make(map[uuid.UUID]*models.APIKey),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) record(id uuid.UUID) (*jobRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.jobs[id]
	return rec, ok
}

// --- Jobs ---

func (s *MemoryStore) CreateJob(ctx context.Context, job *models.Job, stages []*models.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return ErrDuplicateKey
	}
	rec := &jobRecord{job: *job}
	for _, st := range stages {
		cp := *st
		rec.stages = append(rec.stages, &cp)
	}
	s.jobs[job.ID] = rec
	return nil
}

func (s *MemoryStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	rec, ok := s.record(id)
	if !ok {
		return nil, ErrNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	cp := rec.job
	return &cp, nil
}

func (s *MemoryStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus, opts ...JobUpdateOption) error {
	rec, ok := s.record(id)
	if !ok {
		return ErrNotFound
	}
	params := jobUpdateParams{}
	for _, opt := range opts {
		opt(&params)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.job.Status = status
	rec.job.UpdatedAt = time.Now().UTC()
	if params.ErrorMessage != nil {
		rec.job.ErrorMessage = params.ErrorMessage
	}
	if params.FinalArtifact != nil {
		rec.job.FinalArtifact = params.FinalArtifact
	}
	if params.CompletedAt != nil {
		rec.job.CompletedAt = params.CompletedAt
	}
	return nil
}

// --- Stages ---

func (s *MemoryStore) ListStages(ctx context.Context, jobID uuid.UUID) ([]*models.Stage, error) {
	rec, ok := s.record(jobID)
	if !ok {
		return nil, ErrNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]*models.Stage, len(rec.stages))
	for i, st := range rec.stages {
		cp := *st
		out[i] = &cp
	}
	return out, nil
}

func (s *MemoryStore) GetStage(ctx context.Context, jobID uuid.UUID, name models.StageName) (*models.Stage, error) {
	rec, ok := s.record(jobID)
	if !ok {
		return nil, ErrNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, st := range rec.stages {
		if st.Name == name {
			cp := *st
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ClaimStage(ctx context.Context, jobID uuid.UUID, name models.StageName) (bool, error) {
	rec, ok := s.record(jobID)
	if !ok {
		return false, ErrNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, st := range rec.stages {
		if st.Name != name {
			continue
		}
		if st.Status != models.StageStatusPending {
			return false, nil
		}
		now := time.Now().UTC()
		st.Status = models.StageStatusRunning
		st.StartedAt = &now
		st.UpdatedAt = now
		return true, nil
	}
	return false, ErrNotFound
}

func (s *MemoryStore) UpdateStage(ctx context.Context, jobID uuid.UUID, name models.StageName, update StageUpdate) error {
	rec, ok := s.record(jobID)
	if !ok {
		return ErrNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, st := range rec.stages {
		if st.Name != name {
			continue
		}
		if update.Status != nil {
			st.Status = *update.Status
		}
		if update.Progress != nil && *update.Progress > st.ProgressPercentage {
			st.ProgressPercentage = *update.Progress
		}
		if update.Attempts != nil {
			st.Attempts = *update.Attempts
		}
		if update.PhaseData != nil {
			st.PhaseData = update.PhaseData
		}
		if update.ErrorMessage != nil {
			st.ErrorMessage = update.ErrorMessage
		}
		if update.ErrorDetails != nil {
			st.ErrorDetails = update.ErrorDetails
		}
		if update.CompletedAt != nil {
			st.CompletedAt = update.CompletedAt
		}
		if update.DurationSeconds != nil {
			st.DurationSeconds = update.DurationSeconds
		}
		st.UpdatedAt = time.Now().UTC()
		return nil
	}
	return ErrNotFound
}

func (s *MemoryStore) SkipPendingStages(ctx context.Context, jobID uuid.UUID, names []models.StageName, reason string) error {
	rec, ok := s.record(jobID)
	if !ok {
		return ErrNotFound
	}
	skip := make(map[models.StageName]bool, len(names))
	for _, n := range names {
		skip[n] = true
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, st := range rec.stages {
		if skip[st.Name] && st.Status == models.StageStatusPending {
			st.Status = models.StageStatusSkipped
			msg := reason
			st.ErrorMessage = &msg
			st.UpdatedAt = time.Now().UTC()
		}
	}
	return nil
}

// --- API Keys ---

func (s *MemoryStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.keys[id]; ok {
		now := time.Now().UTC()
		k.LastUsedAt = &now
	}
	return nil
}

func (s *MemoryStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.keys[key.ID]; exists {
		return ErrDuplicateKey
	}
	cp := *key
	s.keys[key.ID] = &cp
	return nil
}

func (s *MemoryStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.DeletedAt == nil {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok || k.DeletedAt != nil {
		return ErrNotFound
	}
	now := time.Now().UTC()
	k.DeletedAt = &now
	return nil
}

var _ Store = (*MemoryStore)(nil)
