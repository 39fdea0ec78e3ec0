package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/videogen/orchestrator/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job, stages []*models.Stage) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create job: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO jobs (id, input_text, user_id, session_id, target_language, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, job.InputText, job.UserID, job.SessionID, job.TargetLanguage, job.Status,
		job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}

	for i, st := range stages {
		_, err = tx.Exec(ctx,
			`INSERT INTO job_stages (job_id, name, position, status, progress_percentage, attempts, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			st.JobID, st.Name, i, st.Status, st.ProgressPercentage, st.Attempts,
			st.CreatedAt, st.UpdatedAt)
		if err != nil {
			return fmt.Errorf("create stage %s: %w", st.Name, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var j models.Job
	err := s.pool.QueryRow(ctx,
		`SELECT id, input_text, user_id, session_id, target_language, status, final_artifact,
		        error_message, created_at, updated_at, completed_at
		 FROM jobs WHERE id = $1`, id,
	).Scan(&j.ID, &j.InputText, &j.UserID, &j.SessionID, &j.TargetLanguage, &j.Status,
		&j.FinalArtifact, &j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt, &j.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus, opts ...JobUpdateOption) error {
	params := jobUpdateParams{}
	for _, opt := range opts {
		opt(&params)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2,
		        error_message = COALESCE($3, error_message),
		        final_artifact = COALESCE($4, final_artifact),
		        completed_at = COALESCE($5, completed_at),
		        updated_at = NOW()
		 WHERE id = $1`,
		id, status, params.ErrorMessage, params.FinalArtifact, params.CompletedAt)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Stages ---

const stageColumns = `job_id, name, status, progress_percentage, attempts, phase_data,
	error_message, error_details, started_at, completed_at, duration_seconds, created_at, updated_at`

func scanStage(row pgx.Row) (*models.Stage, error) {
	var st models.Stage
	err := row.Scan(&st.JobID, &st.Name, &st.Status, &st.ProgressPercentage, &st.Attempts,
		&st.PhaseData, &st.ErrorMessage, &st.ErrorDetails, &st.StartedAt, &st.CompletedAt,
		&st.DurationSeconds, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *PostgresStore) ListStages(ctx context.Context, jobID uuid.UUID) ([]*models.Stage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+stageColumns+` FROM job_stages WHERE job_id = $1 ORDER BY position ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	defer rows.Close()

	var stages []*models.Stage
	for rows.Next() {
		st, err := scanStage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		stages = append(stages, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(stages) == 0 {
		// Distinguish an unknown job from a job with no stages; jobs are
		// always created with their full stage list.
		if _, err := s.GetJob(ctx, jobID); err != nil {
			return nil, err
		}
	}
	return stages, nil
}

func (s *PostgresStore) GetStage(ctx context.Context, jobID uuid.UUID, name models.StageName) (*models.Stage, error) {
	st, err := scanStage(s.pool.QueryRow(ctx,
		`SELECT `+stageColumns+` FROM job_stages WHERE job_id = $1 AND name = $2`, jobID, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get stage: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) ClaimStage(ctx context.Context, jobID uuid.UUID, name models.StageName) (bool, error) {
	// The status guard makes the claim atomic: a second dispatcher sees zero
	// rows affected and backs off.
	tag, err := s.pool.Exec(ctx,
		`UPDATE job_stages SET status = $3, started_at = NOW(), updated_at = NOW()
		 WHERE job_id = $1 AND name = $2 AND status = $4`,
		jobID, name, models.StageStatusRunning, models.StageStatusPending)
	if err != nil {
		return false, fmt.Errorf("claim stage: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) UpdateStage(ctx context.Context, jobID uuid.UUID, name models.StageName, update StageUpdate) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE job_stages SET
		        status = COALESCE($3, status),
		        progress_percentage = GREATEST(progress_percentage, COALESCE($4, progress_percentage)),
		        attempts = COALESCE($5, attempts),
		        phase_data = COALESCE($6, phase_data),
		        error_message = COALESCE($7, error_message),
		        error_details = COALESCE($8, error_details),
		        completed_at = COALESCE($9, completed_at),
		        duration_seconds = COALESCE($10, duration_seconds),
		        updated_at = NOW()
		 WHERE job_id = $1 AND name = $2`,
		jobID, name, update.Status, update.Progress, update.Attempts, update.PhaseData,
		update.ErrorMessage, update.ErrorDetails, update.CompletedAt, update.DurationSeconds)
	if err != nil {
		return fmt.Errorf("update stage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SkipPendingStages(ctx context.Context, jobID uuid.UUID, names []models.StageName, reason string) error {
	if len(names) == 0 {
		return nil
	}
	skipped := make([]string, len(names))
	for i, n := range names {
		skipped[i] = string(n)
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE job_stages SET status = $3, error_message = $4, updated_at = NOW()
		 WHERE job_id = $1 AND name = ANY($2) AND status = $5`,
		jobID, skipped, models.StageStatusSkipped, reason, models.StageStatusPending)
	if err != nil {
		return fmt.Errorf("skip stages: %w", err)
	}
	return nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ Store = (*PostgresStore)(nil)
