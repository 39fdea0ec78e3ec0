package store_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/videogen/orchestrator/internal/store"
	"github.com/videogen/orchestrator/pkg/models"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool + cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("videogen_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Run migrations
	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func TestPostgresStore_JobLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job := seedJob(t, s, models.StageValidation, models.StageTranslation, models.StageComposition)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, models.JobStatusPending, got.Status)

	stages, err := s.ListStages(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, stages, 3)
	// Stage order must be the declared pipeline order, not name order.
	assert.Equal(t, models.StageValidation, stages[0].Name)
	assert.Equal(t, models.StageTranslation, stages[1].Name)
	assert.Equal(t, models.StageComposition, stages[2].Name)

	now := time.Now().UTC()
	require.NoError(t, s.UpdateJobStatus(ctx, job.ID, models.JobStatusCompleted,
		store.WithFinalArtifact("s3://videos/final.mp4"),
		store.WithCompletedAt(now)))

	got, err = s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	require.NotNil(t, got.FinalArtifact)
	assert.Equal(t, "s3://videos/final.mp4", *got.FinalArtifact)
	require.NotNil(t, got.CompletedAt)
}

func TestPostgresStore_GetJobNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.GetJob(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPostgresStore_ClaimStage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job := seedJob(t, s, models.StageValidation)

	claimed, err := s.ClaimStage(ctx, job.ID, models.StageValidation)
	require.NoError(t, err)
	assert.True(t, claimed)

	stage, err := s.GetStage(ctx, job.ID, models.StageValidation)
	require.NoError(t, err)
	assert.Equal(t, models.StageStatusRunning, stage.Status)
	require.NotNil(t, stage.StartedAt)

	claimed, err = s.ClaimStage(ctx, job.ID, models.StageValidation)
	require.NoError(t, err)
	assert.False(t, claimed, "claim must be refused once the stage left pending")
}

func TestPostgresStore_UpdateStageAndSkip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job := seedJob(t, s, models.StageCharacterGeneration, models.StageVideoGeneration, models.StageComposition)

	status := models.StageStatusFailed
	msg := "character model diverged"
	details := json.RawMessage(`{"reason":"generation_failed","retryable":false,"attempts":1}`)
	attempts := 1
	require.NoError(t, s.UpdateStage(ctx, job.ID, models.StageCharacterGeneration, store.StageUpdate{
		Status:       &status,
		Attempts:     &attempts,
		ErrorMessage: &msg,
		ErrorDetails: details,
	}))

	require.NoError(t, s.SkipPendingStages(ctx, job.ID,
		[]models.StageName{models.StageVideoGeneration, models.StageComposition},
		"predecessor character_generation failed"))

	stages, err := s.ListStages(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageStatusFailed, stages[0].Status)
	assert.Equal(t, models.StageStatusSkipped, stages[1].Status)
	assert.Equal(t, models.StageStatusSkipped, stages[2].Status)
	require.NotNil(t, stages[0].ErrorMessage)
	assert.Equal(t, "character model diverged", *stages[0].ErrorMessage)
	assert.JSONEq(t, string(details), string(stages[0].ErrorDetails))
}

func TestPostgresStore_ProgressIsMonotonic(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job := seedJob(t, s, models.StageTranslation)

	high, low := 80, 40
	require.NoError(t, s.UpdateStage(ctx, job.ID, models.StageTranslation,
		store.StageUpdate{Progress: &high}))
	require.NoError(t, s.UpdateStage(ctx, job.ID, models.StageTranslation,
		store.StageUpdate{Progress: &low}))

	stage, err := s.GetStage(ctx, job.ID, models.StageTranslation)
	require.NoError(t, err)
	assert.Equal(t, 80, stage.ProgressPercentage)
}

func TestPostgresStore_APIKeys(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	now := time.Now().UTC()
	key := &models.APIKey{
		ID:        uuid.New(),
		Name:      "integration",
		KeyHash:   "$2a$10$somehash",
		KeyPrefix: "vg_wxyz9",
		Scopes:    []string{"process", "admin"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))

	found, err := s.GetAPIKeyByPrefix(ctx, "vg_wxyz9")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, []string{"process", "admin"}, found[0].Scopes)

	require.NoError(t, s.UpdateAPIKeyLastUsed(ctx, key.ID))

	keys, err := s.ListAPIKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.NotNil(t, keys[0].LastUsedAt)

	require.NoError(t, s.RevokeAPIKey(ctx, key.ID))
	found, err = s.GetAPIKeyByPrefix(ctx, "vg_wxyz9")
	require.NoError(t, err)
	assert.Empty(t, found)
}
