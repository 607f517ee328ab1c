// Package queue is the durable, cross-worker job queue backed by
// PostgreSQL, grounded on the claim semantics of
// ares-db/src/job_repository.rs and the repository idiom of
// crawler/internal/database/job_repository.go.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/andreabozzo/ares/internal/apperrors"
	"github.com/andreabozzo/ares/internal/domain"
)

// ErrJobNotFound is returned by GetJob when no row matches the id.
var ErrJobNotFound = errors.New("job not found")

// jobColumns lists every scrape_jobs column, reused by
// every SELECT/RETURNING so struct-tag mapping stays in lockstep with the
// schema.
const jobColumns = `id, url, schema_name, schema, model, base_url, max_retries,
	status, created_at, updated_at, started_at, completed_at, next_retry_at,
	retry_count, error_message, extraction_id, worker_id`

// Queue is the Postgres-backed job queue.
type Queue struct {
	db *sqlx.DB
}

// New wraps an already-connected sqlx.DB.
func New(db *sqlx.DB) *Queue {
	return &Queue{db: db}
}

// CreateJob inserts a new pending job. An empty req.BaseURL is left out of
// the insert entirely so the column's own DEFAULT (the provider's base URL)
// takes effect, rather than persisting a literal empty string.
func (q *Queue) CreateJob(ctx context.Context, req domain.CreateJobRequest) (*domain.Job, error) {
	var query string
	args := []any{req.URL, req.SchemaName, req.Schema, req.Model}
	if req.BaseURL == "" {
		query = `INSERT INTO scrape_jobs (url, schema_name, schema, model, max_retries)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING ` + jobColumns
		args = append(args, req.MaxRetriesOrDefault())
	} else {
		query = `INSERT INTO scrape_jobs (url, schema_name, schema, model, base_url, max_retries)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING ` + jobColumns
		args = append(args, req.BaseURL, req.MaxRetriesOrDefault())
	}

	var job domain.Job
	err := q.db.QueryRowxContext(ctx, query, args...).StructScan(&job)
	if err != nil {
		return nil, apperrors.NewDatabase("create job", err)
	}
	return &job, nil
}

// ClaimJob atomically claims the oldest eligible pending job for worker_id,
// in a single statement so the row-level SKIP LOCKED lock is held only for
// the duration of the UPDATE itself. Returns (nil, nil) when no job is
// available.
func (q *Queue) ClaimJob(ctx context.Context, workerID string) (*domain.Job, error) {
	query := `UPDATE scrape_jobs
		SET status = 'running', worker_id = $1, started_at = NOW(), updated_at = NOW()
		WHERE id = (
			SELECT id FROM scrape_jobs
			WHERE status = 'pending'
			  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
			ORDER BY next_retry_at NULLS FIRST, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING ` + jobColumns

	var job domain.Job
	err := q.db.QueryRowxContext(ctx, query, workerID).StructScan(&job)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.NewDatabase("claim job", err)
	}
	return &job, nil
}

// CompleteJob marks job_id completed, attaching the resulting extraction.
func (q *Queue) CompleteJob(ctx context.Context, jobID uuid.UUID, extractionID *uuid.UUID) error {
	query := `UPDATE scrape_jobs
		SET status = 'completed', completed_at = NOW(), updated_at = NOW(),
			extraction_id = $2, error_message = NULL, worker_id = NULL
		WHERE id = $1`

	if _, err := q.db.ExecContext(ctx, query, jobID, extractionID); err != nil {
		return apperrors.NewDatabase("complete job", err)
	}
	return nil
}

// FailJob records a failed attempt. When nextRetryAt is non-nil the job is
// put back to pending with retry_count incremented; when nil it is marked
// permanently failed and retry_count is left untouched.
func (q *Queue) FailJob(ctx context.Context, jobID uuid.UUID, errMsg string, nextRetryAt *time.Time) error {
	query := `UPDATE scrape_jobs
		SET
			status = CASE WHEN $3::timestamptz IS NOT NULL THEN 'pending' ELSE 'failed' END,
			retry_count = CASE WHEN $3::timestamptz IS NOT NULL THEN retry_count + 1 ELSE retry_count END,
			next_retry_at = $3,
			error_message = $2,
			updated_at = NOW(),
			worker_id = NULL,
			started_at = CASE WHEN $3::timestamptz IS NOT NULL THEN NULL ELSE started_at END
		WHERE id = $1`

	if _, err := q.db.ExecContext(ctx, query, jobID, errMsg, nextRetryAt); err != nil {
		return apperrors.NewDatabase("fail job", err)
	}
	return nil
}

// CancelJob cancels a job unless it already reached a terminal state of
// completed or cancelled.
func (q *Queue) CancelJob(ctx context.Context, jobID uuid.UUID) error {
	query := `UPDATE scrape_jobs
		SET status = 'cancelled', updated_at = NOW(), worker_id = NULL
		WHERE id = $1 AND status NOT IN ('completed', 'cancelled')`

	result, err := q.db.ExecContext(ctx, query, jobID)
	if err != nil {
		return apperrors.NewDatabase("cancel job", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewDatabase("cancel job: rows affected", err)
	}
	if rows == 0 {
		return ErrJobAlreadyTerminal
	}
	return nil
}

// ErrJobAlreadyTerminal is returned by CancelJob when the job is already
// completed or cancelled.
var ErrJobAlreadyTerminal = errors.New("job is already in a terminal state")

// GetJob fetches a single job by id.
func (q *Queue) GetJob(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM scrape_jobs WHERE id = $1`

	var job domain.Job
	err := q.db.QueryRowxContext(ctx, query, jobID).StructScan(&job)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, apperrors.NewDatabase("get job", err)
	}
	return &job, nil
}

// ListParams filters and paginates ListJobs.
type ListParams struct {
	Status *domain.Status
	Limit  int
}

// ListJobs returns jobs newest-first, optionally filtered by status.
func (q *Queue) ListJobs(ctx context.Context, params ListParams) ([]domain.Job, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 100
	}

	var (
		rows *sqlx.Rows
		err  error
	)
	if params.Status != nil {
		query := `SELECT ` + jobColumns + ` FROM scrape_jobs WHERE status = $1 ORDER BY created_at DESC LIMIT $2`
		rows, err = q.db.QueryxContext(ctx, query, *params.Status, limit)
	} else {
		query := `SELECT ` + jobColumns + ` FROM scrape_jobs ORDER BY created_at DESC LIMIT $1`
		rows, err = q.db.QueryxContext(ctx, query, limit)
	}
	if err != nil {
		return nil, apperrors.NewDatabase("list jobs", err)
	}
	defer rows.Close()

	jobs := make([]domain.Job, 0, limit)
	for rows.Next() {
		var job domain.Job
		if err := rows.StructScan(&job); err != nil {
			return nil, apperrors.NewDatabase("list jobs: scan", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabase("list jobs: iterate", err)
	}
	return jobs, nil
}

// ReleaseJob returns a single running job to pending, used when a worker
// cannot process it (e.g. its circuit breaker rejected the call) without
// recording it as a failure.
func (q *Queue) ReleaseJob(ctx context.Context, jobID uuid.UUID) error {
	query := `UPDATE scrape_jobs
		SET status = 'pending', worker_id = NULL, started_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'running'`

	if _, err := q.db.ExecContext(ctx, query, jobID); err != nil {
		return apperrors.NewDatabase("release job", err)
	}
	return nil
}

// ReleaseWorkerJobs returns every job currently running under workerID back
// to pending. Called on worker shutdown so in-flight jobs are retried by
// some other worker instead of being stranded "running" forever.
func (q *Queue) ReleaseWorkerJobs(ctx context.Context, workerID string) (int64, error) {
	query := `UPDATE scrape_jobs
		SET status = 'pending', worker_id = NULL, started_at = NULL, updated_at = NOW()
		WHERE worker_id = $1 AND status = 'running'`

	result, err := q.db.ExecContext(ctx, query, workerID)
	if err != nil {
		return 0, apperrors.NewDatabase("release worker jobs", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.NewDatabase("release worker jobs: rows affected", err)
	}
	return n, nil
}

// CountByStatus returns the number of jobs currently in the given status.
func (q *Queue) CountByStatus(ctx context.Context, status domain.Status) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM scrape_jobs WHERE status = $1`
	if err := q.db.GetContext(ctx, &count, query, status); err != nil {
		return 0, apperrors.NewDatabase("count by status", err)
	}
	return count, nil
}

// HealthCheck confirms the underlying connection pool can reach the
// database, used by the server's /health endpoint.
func (q *Queue) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := q.db.PingContext(ctx); err != nil {
		return fmt.Errorf("queue health check: %w", err)
	}
	return nil
}
