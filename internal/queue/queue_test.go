package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/andreabozzo/ares/internal/domain"
	"github.com/andreabozzo/ares/internal/queue"
)

func newMockQueue(t *testing.T) (*queue.Queue, sqlmock.Sqlmock, func()) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	db := sqlx.NewDb(mockDB, "postgres")
	return queue.New(db), mock, func() { mockDB.Close() }
}

func jobRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "url", "schema_name", "schema", "model", "base_url", "max_retries",
		"status", "created_at", "updated_at", "started_at", "completed_at", "next_retry_at",
		"retry_count", "error_message", "extraction_id", "worker_id",
	})
}

func TestCreateJobWithoutBaseURLOmitsColumn(t *testing.T) {
	q, mock, cleanup := newMockQueue(t)
	defer cleanup()

	jobID := uuid.New()
	now := time.Now()
	mock.ExpectQuery("INSERT INTO scrape_jobs").
		WithArgs("https://example.com", "product", sqlmock.AnyArg(), "gpt-4", 3).
		WillReturnRows(jobRows().AddRow(
			jobID, "https://example.com", "product", []byte(`{}`), "gpt-4", "https://api.anthropic.com", 3,
			"pending", now, now, nil, nil, nil, 0, nil, nil, nil,
		))

	job, err := q.CreateJob(context.Background(), domain.CreateJobRequest{
		URL:        "https://example.com",
		SchemaName: "product",
		Schema:     domain.JSONBMap{},
		Model:      "gpt-4",
	})
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if job.ID != jobID {
		t.Errorf("expected job id %s, got %s", jobID, job.ID)
	}
	if job.Status != domain.StatusPending {
		t.Errorf("expected pending status, got %s", job.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCreateJobWithBaseURLBindsColumn(t *testing.T) {
	q, mock, cleanup := newMockQueue(t)
	defer cleanup()

	jobID := uuid.New()
	now := time.Now()
	mock.ExpectQuery("INSERT INTO scrape_jobs").
		WithArgs("https://example.com", "product", sqlmock.AnyArg(), "gpt-4", "https://custom.example.com", 3).
		WillReturnRows(jobRows().AddRow(
			jobID, "https://example.com", "product", []byte(`{}`), "gpt-4", "https://custom.example.com", 3,
			"pending", now, now, nil, nil, nil, 0, nil, nil, nil,
		))

	job, err := q.CreateJob(context.Background(), domain.CreateJobRequest{
		URL:        "https://example.com",
		SchemaName: "product",
		Schema:     domain.JSONBMap{},
		Model:      "gpt-4",
		BaseURL:    "https://custom.example.com",
	})
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if job.BaseURL != "https://custom.example.com" {
		t.Errorf("expected base_url to round-trip, got %q", job.BaseURL)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestClaimJobReturnsNilWhenEmpty(t *testing.T) {
	q, mock, cleanup := newMockQueue(t)
	defer cleanup()

	mock.ExpectQuery("UPDATE scrape_jobs").
		WithArgs("worker-1").
		WillReturnRows(jobRows())

	job, err := q.ClaimJob(context.Background(), "worker-1")
	if err != nil {
		t.Fatalf("ClaimJob() error = %v", err)
	}
	if job != nil {
		t.Errorf("expected nil job when nothing claimable, got %+v", job)
	}
}

func TestClaimJobReturnsClaimedRow(t *testing.T) {
	q, mock, cleanup := newMockQueue(t)
	defer cleanup()

	jobID := uuid.New()
	now := time.Now()
	mock.ExpectQuery("UPDATE scrape_jobs").
		WithArgs("worker-1").
		WillReturnRows(jobRows().AddRow(
			jobID, "https://example.com", "product", []byte(`{}`), "gpt-4", "", 3,
			"running", now, now, &now, nil, nil, 0, nil, nil, "worker-1",
		))

	job, err := q.ClaimJob(context.Background(), "worker-1")
	if err != nil {
		t.Fatalf("ClaimJob() error = %v", err)
	}
	if job == nil {
		t.Fatal("expected a claimed job")
	}
	if job.Status != domain.StatusRunning {
		t.Errorf("expected running status, got %s", job.Status)
	}
}

func TestFailJobWithRetryIncrementsRetryCount(t *testing.T) {
	q, mock, cleanup := newMockQueue(t)
	defer cleanup()

	jobID := uuid.New()
	retryAt := time.Now().Add(time.Minute)
	mock.ExpectExec("UPDATE scrape_jobs").
		WithArgs(jobID, "boom", &retryAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := q.FailJob(context.Background(), jobID, "boom", &retryAt); err != nil {
		t.Fatalf("FailJob() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestFailJobWithoutRetryMarksPermanentlyFailed(t *testing.T) {
	q, mock, cleanup := newMockQueue(t)
	defer cleanup()

	jobID := uuid.New()
	mock.ExpectExec("UPDATE scrape_jobs").
		WithArgs(jobID, "fatal", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := q.FailJob(context.Background(), jobID, "fatal", nil); err != nil {
		t.Fatalf("FailJob() error = %v", err)
	}
}

func TestCancelJobAlreadyTerminalReturnsError(t *testing.T) {
	q, mock, cleanup := newMockQueue(t)
	defer cleanup()

	jobID := uuid.New()
	mock.ExpectExec("UPDATE scrape_jobs").
		WithArgs(jobID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := q.CancelJob(context.Background(), jobID)
	if err != queue.ErrJobAlreadyTerminal {
		t.Fatalf("expected ErrJobAlreadyTerminal, got %v", err)
	}
}

func TestGetJobNotFound(t *testing.T) {
	q, mock, cleanup := newMockQueue(t)
	defer cleanup()

	jobID := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM scrape_jobs WHERE id").
		WithArgs(jobID).
		WillReturnRows(jobRows())

	_, err := q.GetJob(context.Background(), jobID)
	if err != queue.ErrJobNotFound {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestReleaseWorkerJobsReturnsRowsAffected(t *testing.T) {
	q, mock, cleanup := newMockQueue(t)
	defer cleanup()

	mock.ExpectExec("UPDATE scrape_jobs").
		WithArgs("worker-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := q.ReleaseWorkerJobs(context.Background(), "worker-1")
	if err != nil {
		t.Fatalf("ReleaseWorkerJobs() error = %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 released jobs, got %d", n)
	}
}

func TestCountByStatus(t *testing.T) {
	q, mock, cleanup := newMockQueue(t)
	defer cleanup()

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(domain.StatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(7)))

	n, err := q.CountByStatus(context.Background(), domain.StatusPending)
	if err != nil {
		t.Fatalf("CountByStatus() error = %v", err)
	}
	if n != 7 {
		t.Errorf("expected 7, got %d", n)
	}
}
