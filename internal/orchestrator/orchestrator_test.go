package orchestrator_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/videogen/orchestrator/internal/collaborator"
	"github.com/videogen/orchestrator/internal/collaborator/mock"
	"github.com/videogen/orchestrator/internal/orchestrator"
	"github.com/videogen/orchestrator/internal/pipeline"
	"github.com/videogen/orchestrator/internal/store"
	"github.com/videogen/orchestrator/pkg/models"
)

// noopCache satisfies cache.Cache; orchestration must not depend on Redis
// being reachable.
type noopCache struct{}

func (noopCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (noopCache) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (noopCache) Delete(context.Context, string) error                     { return nil }
func (noopCache) Ping(context.Context) error                               { return nil }
func (noopCache) SetJobStatus(context.Context, uuid.UUID, models.JobStatus, time.Duration) error {
	return nil
}
func (noopCache) GetJobStatus(context.Context, uuid.UUID) (models.JobStatus, bool, error) {
	return "", false, nil
}
func (noopCache) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 1, nil
}

type harness struct {
	orch  *orchestrator.Orchestrator
	store store.Store
	mocks map[models.StageName]*mock.Collaborator
}

// newHarness builds an orchestrator over the full default pipeline with fast
// retry backoff, a MemoryStore, and one scripted collaborator per stage.
// Overrides replace the default always-succeeding mock for selected stages.
func newHarness(t *testing.T, overrides map[models.StageName]*mock.Collaborator) *harness {
	t.Helper()

	graph, err := pipeline.New(pipeline.DefaultDefinitions(pipeline.Overrides{
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	}))
	require.NoError(t, err)

	mocks := make(map[models.StageName]*mock.Collaborator)
	collabs := collaborator.NewRegistry()
	for _, name := range graph.Order() {
		m, ok := overrides[name]
		if !ok {
			if name == models.StageComposition {
				m = mock.NewArtifact(string(name), `{"done":true}`, "s3://videos/final.mp4")
			} else {
				m = mock.NewStatic(string(name), `{"ok":true}`)
			}
		}
		mocks[name] = m
		collabs.Register(name, m, 4)
	}

	st := store.NewMemoryStore()
	executor := orchestrator.NewExecutor(st, collabs, graph)
	registry, err := orchestrator.NewRegistry(64)
	require.NoError(t, err)

	return &harness{
		orch:  orchestrator.New(st, noopCache{}, graph, executor, registry),
		store: st,
		mocks: mocks,
	}
}

func submit(t *testing.T, h *harness) *models.Job {
	t.Helper()
	job, err := h.orch.Submit(context.Background(),
		orchestrator.SubmitParams{Text: "A farmer finds a glowing seed in his field.", UserID: "u1"})
	require.NoError(t, err)
	return job
}

// waitTerminal polls until the job reaches a terminal status.
func waitTerminal(t *testing.T, h *harness, jobID uuid.UUID) *orchestrator.JobStatusView {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("job did not reach a terminal state in time")
		default:
		}
		view, err := h.orch.Status(context.Background(), jobID, true)
		require.NoError(t, err)
		if view.Status.Terminal() {
			return view
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func stageByName(t *testing.T, view *orchestrator.JobStatusView, name models.StageName) *models.Stage {
	t.Helper()
	for _, st := range view.Phases {
		if st.Name == name {
			return st
		}
	}
	t.Fatalf("stage %s not in status view", name)
	return nil
}

func TestSubmit_FullPipelineCompletes(t *testing.T) {
	h := newHarness(t, nil)
	job := submit(t, h)

	view := waitTerminal(t, h, job.ID)

	assert.Equal(t, models.JobStatusCompleted, view.Status)
	assert.Equal(t, 100, view.ProgressPercentage)
	require.NotNil(t, view.FinalArtifact)
	assert.Equal(t, "s3://videos/final.mp4", *view.FinalArtifact)
	require.NotNil(t, view.CompletedAt)

	for _, st := range view.Phases {
		assert.Equal(t, models.StageStatusCompleted, st.Status, "stage %s", st.Name)
		assert.Equal(t, 100, st.ProgressPercentage, "stage %s", st.Name)
	}

	// Every collaborator ran exactly once.
	for name, m := range h.mocks {
		assert.Equal(t, 1, m.CallCount(), "stage %s", name)
	}
}

// A completed mid-pipeline stage reports its own 100%, not an average pulled
// down by stages that have not started.
func TestStatus_ReportsFurthestStageProgress(t *testing.T) {
	h := newHarness(t, nil)

	now := time.Now().UTC()
	job := &models.Job{
		ID:        uuid.New(),
		InputText: "seeded",
		Status:    models.JobStatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	order := []models.StageName{
		models.StageValidation, models.StageLanguageDetection, models.StageTranslation,
		models.StageSceneAnalysis, models.StageStoryboard, models.StageCharacterGeneration,
		models.StageKeyframeGeneration, models.StageVideoGeneration,
		models.StageVoiceoverGeneration, models.StageComposition,
	}
	stages := make([]*models.Stage, 0, len(order))
	for _, name := range order {
		stages = append(stages, &models.Stage{
			JobID: job.ID, Name: name, Status: models.StageStatusPending,
			CreatedAt: now, UpdatedAt: now,
		})
	}
	require.NoError(t, h.store.CreateJob(context.Background(), job, stages))

	completed := models.StageStatusCompleted
	hundred := 100
	for _, name := range order[:3] {
		require.NoError(t, h.store.UpdateStage(context.Background(), job.ID, name,
			store.StageUpdate{Status: &completed, Progress: &hundred}))
	}

	view, err := h.orch.Status(context.Background(), job.ID, false)
	require.NoError(t, err)

	require.NotNil(t, view.CurrentPhase)
	assert.Equal(t, models.StageTranslation, *view.CurrentPhase)
	assert.Equal(t, 100, view.ProgressPercentage)
	assert.Empty(t, view.Phases)
}

// Scenario: character generation fails fatally. Its dependents are skipped,
// the voiceover branch still completes, and the job fails with the failing
// stage named.
func TestStageFailure_SkipsTransitiveDependents(t *testing.T) {
	h := newHarness(t, map[models.StageName]*mock.Collaborator{
		models.StageCharacterGeneration: mock.NewFailing("character_generation",
			collaborator.NewFatal("generation_failed", errors.New("character model diverged"))),
	})
	job := submit(t, h)

	view := waitTerminal(t, h, job.ID)

	assert.Equal(t, models.JobStatusFailed, view.Status)
	require.NotNil(t, view.ErrorMessage)
	assert.Contains(t, *view.ErrorMessage, "character_generation")

	assert.Equal(t, models.StageStatusFailed, stageByName(t, view, models.StageCharacterGeneration).Status)
	assert.Equal(t, models.StageStatusSkipped, stageByName(t, view, models.StageVideoGeneration).Status)
	assert.Equal(t, models.StageStatusSkipped, stageByName(t, view, models.StageComposition).Status)

	// The independent branch is unaffected by the failure.
	assert.Equal(t, models.StageStatusCompleted, stageByName(t, view, models.StageVoiceoverGeneration).Status)
	assert.Equal(t, models.StageStatusCompleted, stageByName(t, view, models.StageKeyframeGeneration).Status)

	// A fatal error is never retried.
	assert.Equal(t, 1, h.mocks[models.StageCharacterGeneration].CallCount())
	// Nothing downstream of the failure ever ran.
	assert.Equal(t, 0, h.mocks[models.StageVideoGeneration].CallCount())
	assert.Equal(t, 0, h.mocks[models.StageComposition].CallCount())
}

// Scenario: composition must wait for both video generation and voiceover,
// and receives both results as predecessor data.
func TestComposition_WaitsForBothBranches(t *testing.T) {
	var mu sync.Mutex
	var voiceoverDone, videoDone bool

	voiceover := &mock.Collaborator{
		Name_: "voiceover_generation",
		InvokeFunc: func(ctx context.Context, _ models.StageInput) (*models.StageResult, error) {
			time.Sleep(30 * time.Millisecond)
			mu.Lock()
			voiceoverDone = true
			mu.Unlock()
			return &models.StageResult{Data: json.RawMessage(`{"audio":"a.wav"}`)}, nil
		},
	}
	video := &mock.Collaborator{
		Name_: "video_generation",
		InvokeFunc: func(ctx context.Context, _ models.StageInput) (*models.StageResult, error) {
			mu.Lock()
			videoDone = true
			mu.Unlock()
			return &models.StageResult{Data: json.RawMessage(`{"clip":"v.mp4"}`)}, nil
		},
	}
	composition := &mock.Collaborator{
		Name_: "composition",
		InvokeFunc: func(ctx context.Context, input models.StageInput) (*models.StageResult, error) {
			mu.Lock()
			defer mu.Unlock()
			if !voiceoverDone || !videoDone {
				return nil, collaborator.NewFatal("premature", errors.New("dispatched before both branches finished"))
			}
			assert.JSONEq(t, `{"audio":"a.wav"}`, string(input.PriorResults[models.StageVoiceoverGeneration]))
			assert.JSONEq(t, `{"clip":"v.mp4"}`, string(input.PriorResults[models.StageVideoGeneration]))
			return &models.StageResult{Data: json.RawMessage(`{"done":true}`)}, nil
		},
	}

	h := newHarness(t, map[models.StageName]*mock.Collaborator{
		models.StageVoiceoverGeneration: voiceover,
		models.StageVideoGeneration:     video,
		models.StageComposition:         composition,
	})
	job := submit(t, h)

	view := waitTerminal(t, h, job.ID)
	assert.Equal(t, models.JobStatusCompleted, view.Status)
	assert.Equal(t, 1, composition.CallCount())
}

// Scenario: identical submissions are independent jobs, never deduplicated.
func TestDuplicateSubmissions_Independent(t *testing.T) {
	h := newHarness(t, nil)

	first := submit(t, h)
	second := submit(t, h)
	assert.NotEqual(t, first.ID, second.ID)

	firstView := waitTerminal(t, h, first.ID)
	secondView := waitTerminal(t, h, second.ID)
	assert.Equal(t, models.JobStatusCompleted, firstView.Status)
	assert.Equal(t, models.JobStatusCompleted, secondView.Status)

	// Each job invoked every collaborator once.
	for name, m := range h.mocks {
		assert.Equal(t, 2, m.CallCount(), "stage %s", name)
	}
}

// Scenario: polling an unknown id is a clean not-found, indistinguishable
// from a never-submitted job.
func TestStatus_UnknownJob(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.orch.Status(context.Background(), uuid.New(), false)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRetry_TransientFailureRecovers(t *testing.T) {
	flaky := mock.NewFlaky("translation", 2,
		collaborator.NewRetryable("unreachable", errors.New("connection refused")),
		`{"translated":"text"}`)
	h := newHarness(t, map[models.StageName]*mock.Collaborator{
		models.StageTranslation: flaky,
	})
	job := submit(t, h)

	view := waitTerminal(t, h, job.ID)

	assert.Equal(t, models.JobStatusCompleted, view.Status)
	st := stageByName(t, view, models.StageTranslation)
	assert.Equal(t, models.StageStatusCompleted, st.Status)
	assert.Equal(t, 3, st.Attempts)
	assert.Equal(t, 3, flaky.CallCount())
}

func TestRetry_ExhaustionFailsStage(t *testing.T) {
	failing := mock.NewFailing("translation",
		collaborator.NewRetryable("unreachable", errors.New("connection refused")))
	h := newHarness(t, map[models.StageName]*mock.Collaborator{
		models.StageTranslation: failing,
	})
	job := submit(t, h)

	view := waitTerminal(t, h, job.ID)

	assert.Equal(t, models.JobStatusFailed, view.Status)
	st := stageByName(t, view, models.StageTranslation)
	assert.Equal(t, models.StageStatusFailed, st.Status)
	// Initial attempt plus MaxRetries retries.
	assert.Equal(t, 3, st.Attempts)
	assert.Equal(t, 3, failing.CallCount())

	require.NotNil(t, st.ErrorDetails)
	var details struct {
		Reason    string `json:"reason"`
		Retryable bool   `json:"retryable"`
		Attempts  int    `json:"attempts"`
	}
	require.NoError(t, json.Unmarshal(st.ErrorDetails, &details))
	assert.Equal(t, "unreachable", details.Reason)
	assert.True(t, details.Retryable)
	assert.Equal(t, 3, details.Attempts)

	// Downstream of translation everything is skipped, including voiceover.
	assert.Equal(t, models.StageStatusSkipped, stageByName(t, view, models.StageVoiceoverGeneration).Status)
	assert.Equal(t, models.StageStatusSkipped, stageByName(t, view, models.StageComposition).Status)
}

func TestCancel_StopsJobAndSkipsRemainingStages(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	blocking := &mock.Collaborator{
		Name_: "scene_analysis",
		InvokeFunc: func(ctx context.Context, _ models.StageInput) (*models.StageResult, error) {
			close(entered)
			select {
			case <-release:
				return &models.StageResult{Data: json.RawMessage(`{}`)}, nil
			case <-ctx.Done():
				return nil, collaborator.NewFatal("cancelled", ctx.Err())
			}
		},
	}
	h := newHarness(t, map[models.StageName]*mock.Collaborator{
		models.StageSceneAnalysis: blocking,
	})
	defer close(release)
	job := submit(t, h)

	<-entered
	require.NoError(t, h.orch.Cancel(context.Background(), job.ID))

	view, err := h.orch.Status(context.Background(), job.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, view.Status)

	// The in-flight stage did not run to an outcome, so it is skipped, not
	// failed; everything not yet started is skipped too.
	assert.Equal(t, models.StageStatusSkipped, stageByName(t, view, models.StageSceneAnalysis).Status)
	assert.Equal(t, models.StageStatusSkipped, stageByName(t, view, models.StageComposition).Status)
	assert.Equal(t, models.StageStatusCompleted, stageByName(t, view, models.StageTranslation).Status)
	assert.Equal(t, 0, h.mocks[models.StageStoryboard].CallCount())

	// Cancelling a finished job is rejected.
	assert.ErrorIs(t, h.orch.Cancel(context.Background(), job.ID), orchestrator.ErrJobTerminal)
}

func TestCancel_UnknownJob(t *testing.T) {
	h := newHarness(t, nil)
	assert.ErrorIs(t, h.orch.Cancel(context.Background(), uuid.New()), store.ErrNotFound)
}

func TestSubmit_RejectsEmptyText(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.orch.Submit(context.Background(), orchestrator.SubmitParams{Text: "   "})
	assert.Error(t, err)
}

func TestDrain_WaitsForRunningJobs(t *testing.T) {
	h := newHarness(t, nil)
	job := submit(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, h.orch.Drain(ctx))

	view, err := h.orch.Status(context.Background(), job.ID, false)
	require.NoError(t, err)
	assert.True(t, view.Status.Terminal())
}
