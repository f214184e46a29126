package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"budgetlink/internal/domain/job"
)

const jobColumns = `id, job_type, payload, status, attempts, last_attempt_at, last_error, created_at`

// JobRepository implements job.Repository for PostgreSQL
type JobRepository struct {
	db Querier
}

var _ job.Repository = (*JobRepository)(nil)

// NewJobRepository creates a repository over the pool or a transaction.
func NewJobRepository(db Querier) *JobRepository {
	return &JobRepository{db: db}
}

func scanJob(row Row) (*job.Job, error) {
	var j job.Job
	var payload []byte
	var lastAttempt sql.NullTime
	var lastError sql.NullString

	err := row.Scan(&j.ID, &j.JobType, &payload, &j.Status, &j.Attempts, &lastAttempt, &lastError, &j.CreatedAt)
	if err != nil {
		return nil, err
	}

	j.Payload = json.RawMessage(payload)
	if lastAttempt.Valid {
		t := lastAttempt.Time
		j.LastAttemptAt = &t
	}
	if lastError.Valid {
		msg := lastError.String
		j.LastError = &msg
	}
	return &j, nil
}

func scanJobs(rows *sql.Rows) ([]*job.Job, error) {
	defer rows.Close()

	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}
	return jobs, nil
}

// Create enqueues a job in the queued state
func (r *JobRepository) Create(ctx context.Context, params job.CreateParams) (*job.Job, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	payload := "{}"
	if len(params.Payload) > 0 {
		payload = string(params.Payload)
	}

	query := `
		INSERT INTO background_jobs (job_type, payload)
		VALUES ($1, $2::jsonb)
		RETURNING ` + jobColumns

	j, err := scanJob(r.db.QueryRowContext(ctx, query, params.JobType, payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return j, nil
}

// FindByID retrieves a job by its ID
func (r *JobRepository) FindByID(ctx context.Context, id int64) (*job.Job, error) {
	j, err := scanJob(r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM background_jobs WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, job.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

// FindNextAvailable locks the oldest queued job. Rows locked by other
// transactions are skipped, so concurrent claimers never see the same job.
func (r *JobRepository) FindNextAvailable(ctx context.Context, jobType string) (*job.Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM background_jobs
		WHERE status = 'queued' AND ($1 = '' OR job_type = $1)
		ORDER BY created_at, id
		LIMIT 1
		FOR UPDATE SKIP LOCKED`

	j, err := scanJob(r.db.QueryRowContext(ctx, query, jobType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find next job: %w", err)
	}
	return j, nil
}

// MarkAsRunning moves a queued job to running, counts the attempt and returns
// the row as stored so the caller sees the database clock.
func (r *JobRepository) MarkAsRunning(ctx context.Context, id int64) (*job.Job, error) {
	query := `
		UPDATE background_jobs
		SET status = 'running', attempts = attempts + 1, last_attempt_at = NOW()
		WHERE id = $1 AND status = 'queued'
		RETURNING ` + jobColumns

	j, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.transitionError(ctx, "running", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark job %d as running: %w", id, err)
	}
	return j, nil
}

// MarkAsCompleted moves a running job to completed
func (r *JobRepository) MarkAsCompleted(ctx context.Context, id int64) error {
	query := `
		UPDATE background_jobs
		SET status = 'completed', last_error = NULL
		WHERE id = $1 AND status = 'running'
	`
	return r.transition(ctx, "completed", query, id)
}

// MarkAsFailed moves a running job to failed and records the error
func (r *JobRepository) MarkAsFailed(ctx context.Context, id int64, errMsg string) error {
	query := `
		UPDATE background_jobs
		SET status = 'failed', last_error = $2
		WHERE id = $1 AND status = 'running'
	`
	return r.transition(ctx, "failed", query, id, errMsg)
}

// transition runs a guarded status update. Zero affected rows means either
// the job does not exist or its current status forbids the move.
func (r *JobRepository) transition(ctx context.Context, target, query string, id int64, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to mark job %d as %s: %w", id, target, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows > 0 {
		return nil
	}
	return r.transitionError(ctx, target, id)
}

// transitionError explains a guarded update that touched no row.
func (r *JobRepository) transitionError(ctx context.Context, target string, id int64) error {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM background_jobs WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check job %d: %w", id, err)
	}
	if !exists {
		return job.ErrJobNotFound
	}
	return fmt.Errorf("%w: job %d cannot move to %s", job.ErrInvalidTransition, id, target)
}

// FailStale fails running jobs whose last attempt started before cutoff
func (r *JobRepository) FailStale(ctx context.Context, cutoff time.Time, reason string) ([]*job.Job, error) {
	query := `
		UPDATE background_jobs
		SET status = 'failed', last_error = $2
		WHERE status = 'running' AND last_attempt_at < $1
		RETURNING ` + jobColumns

	rows, err := r.db.QueryContext(ctx, query, cutoff, reason)
	if err != nil {
		return nil, fmt.Errorf("failed to fail stale jobs: %w", err)
	}
	return scanJobs(rows)
}

// ListByStatus returns up to limit jobs in status, newest first
func (r *JobRepository) ListByStatus(ctx context.Context, status job.Status, limit int) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM background_jobs
		WHERE status = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return scanJobs(rows)
}
