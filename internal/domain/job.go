// Package domain holds the core's two persisted entities, Job and
// Extraction, and the invariants the queue and extraction store enforce on
// them.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status is the job's state-machine position.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether s is one of the three states a job never
// leaves.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

func (s Status) String() string { return string(s) }

// Job is a unit of scrape-and-extract work. Configuration fields are
// immutable after creation; everything else is owned exclusively by the
// queue component.
type Job struct {
	ID uuid.UUID `db:"id" json:"id"`

	// Configuration, immutable after creation.
	URL        string   `db:"url" json:"url"`
	SchemaName string   `db:"schema_name" json:"schema_name"`
	Schema     JSONBMap `db:"schema" json:"schema"`
	Model      string   `db:"model" json:"model"`
	BaseURL    string   `db:"base_url" json:"base_url"`
	MaxRetries int      `db:"max_retries" json:"max_retries"`

	Status Status `db:"status" json:"status"`

	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
	StartedAt   *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	NextRetryAt *time.Time `db:"next_retry_at" json:"next_retry_at,omitempty"`

	RetryCount int `db:"retry_count" json:"retry_count"`

	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
	ExtractionID *uuid.UUID `db:"extraction_id" json:"extraction_id,omitempty"`
	WorkerID     *string    `db:"worker_id" json:"worker_id,omitempty"`
}

// CanRetry reports whether the job has budget left for another attempt.
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// CreateJobRequest carries the fields needed to create a new Job. MaxRetries
// is a pointer so the caller can distinguish "use the default" from an
// explicit 0.
type CreateJobRequest struct {
	URL        string
	SchemaName string
	Schema     JSONBMap
	Model      string
	BaseURL    string
	MaxRetries *int
}

// DefaultMaxRetries is used when CreateJobRequest.MaxRetries is nil.
const DefaultMaxRetries = 3

// MaxRetriesOrDefault returns the requested max retries, or the default.
func (r CreateJobRequest) MaxRetriesOrDefault() int {
	if r.MaxRetries != nil {
		return *r.MaxRetries
	}
	return DefaultMaxRetries
}
