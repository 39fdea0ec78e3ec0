package orchestrator_test

import (
	"context"
	"encoding/json"
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

// singleStageSetup builds an executor over a one-stage pipeline with the
// given timeout and retry budget, backed by a MemoryStore.
func singleStageSetup(t *testing.T, c models.Collaborator, timeout time.Duration, maxRetries int) (*orchestrator.Executor, store.Store, *models.Job) {
	t.Helper()

	graph, err := pipeline.New([]pipeline.Definition{{
		Name:         models.StageValidation,
		Timeout:      timeout,
		MaxRetries:   maxRetries,
		RetryBackoff: time.Millisecond,
		Estimate:     time.Second,
	}})
	require.NoError(t, err)

	collabs := collaborator.NewRegistry()
	collabs.Register(models.StageValidation, c, 1)

	st := store.NewMemoryStore()
	now := time.Now().UTC()
	job := &models.Job{
		ID:        uuid.New(),
		InputText: "some input text for the stage",
		Status:    models.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, st.CreateJob(context.Background(), job, []*models.Stage{{
		JobID: job.ID, Name: models.StageValidation,
		Status: models.StageStatusPending, CreatedAt: now, UpdatedAt: now,
	}}))

	return orchestrator.NewExecutor(st, collabs, graph), st, job
}

func TestExecute_TimeoutIsRetriedThenFails(t *testing.T) {
	blocked := mock.NewTimeout("validation")
	exec, st, job := singleStageSetup(t, blocked, 20*time.Millisecond, 1)

	err := exec.Execute(context.Background(), job, models.StageValidation)
	require.Error(t, err)

	stage, getErr := st.GetStage(context.Background(), job.ID, models.StageValidation)
	require.NoError(t, getErr)
	assert.Equal(t, models.StageStatusFailed, stage.Status)
	assert.Equal(t, 2, stage.Attempts)

	var details struct {
		Reason string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(stage.ErrorDetails, &details))
	assert.Equal(t, "timeout", details.Reason)
}

func TestExecute_TimeoutRecoversOnRetry(t *testing.T) {
	calls := 0
	c := &mock.Collaborator{
		Name_: "validation",
		InvokeFunc: func(ctx context.Context, _ models.StageInput) (*models.StageResult, error) {
			calls++
			if calls == 1 {
				<-ctx.Done()
				return nil, collaborator.NewRetryable(collaborator.ReasonTimeout, ctx.Err())
			}
			return &models.StageResult{Data: json.RawMessage(`{"ok":true}`)}, nil
		},
	}
	exec, st, job := singleStageSetup(t, c, 20*time.Millisecond, 2)

	require.NoError(t, exec.Execute(context.Background(), job, models.StageValidation))

	stage, err := st.GetStage(context.Background(), job.ID, models.StageValidation)
	require.NoError(t, err)
	assert.Equal(t, models.StageStatusCompleted, stage.Status)
	assert.Equal(t, 100, stage.ProgressPercentage)
	assert.Equal(t, 2, stage.Attempts)
	require.NotNil(t, stage.CompletedAt)
}

func TestExecute_SecondClaimIsNoop(t *testing.T) {
	c := mock.NewStatic("validation", `{"ok":true}`)
	exec, st, job := singleStageSetup(t, c, time.Second, 0)

	require.NoError(t, exec.Execute(context.Background(), job, models.StageValidation))
	// The stage is terminal now; a second dispatch must not rerun it.
	require.NoError(t, exec.Execute(context.Background(), job, models.StageValidation))

	assert.Equal(t, 1, c.CallCount())
	stage, err := st.GetStage(context.Background(), job.ID, models.StageValidation)
	require.NoError(t, err)
	assert.Equal(t, models.StageStatusCompleted, stage.Status)
}

func TestExecute_ArtifactPropagatesToJob(t *testing.T) {
	c := mock.NewArtifact("validation", `{"done":true}`, "s3://videos/out.mp4")
	exec, st, job := singleStageSetup(t, c, time.Second, 0)

	require.NoError(t, exec.Execute(context.Background(), job, models.StageValidation))

	got, err := st.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, got.FinalArtifact)
	assert.Equal(t, "s3://videos/out.mp4", *got.FinalArtifact)
}

func TestExecute_CancelledStageIsSkipped(t *testing.T) {
	entered := make(chan struct{})
	c := &mock.Collaborator{
		Name_: "validation",
		InvokeFunc: func(ctx context.Context, _ models.StageInput) (*models.StageResult, error) {
			close(entered)
			<-ctx.Done()
			return nil, collaborator.NewRetryable(collaborator.ReasonTimeout, ctx.Err())
		},
	}
	exec, st, job := singleStageSetup(t, c, time.Minute, 3)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-entered
		cancel()
	}()

	err := exec.Execute(ctx, job, models.StageValidation)
	assert.ErrorIs(t, err, context.Canceled)

	stage, getErr := st.GetStage(context.Background(), job.ID, models.StageValidation)
	require.NoError(t, getErr)
	assert.Equal(t, models.StageStatusSkipped, stage.Status)
}
