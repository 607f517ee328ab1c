// Package reporter decouples worker lifecycle events from logging and
// external publication, grounded on ares-core/src/worker.rs's
// WorkerReporter trait.
package reporter

import (
	"github.com/google/uuid"

	"github.com/andreabozzo/ares/internal/domain"
)

// EventKind identifies the shape of an Event.
type EventKind string

const (
	EventStarted      EventKind = "started"
	EventPolling      EventKind = "polling"
	EventJobClaimed   EventKind = "job_claimed"
	EventJobStarted   EventKind = "job_started"
	EventJobCompleted EventKind = "job_completed"
	EventJobFailed    EventKind = "job_failed"
	EventShuttingDown EventKind = "shutting_down"
	EventStopped      EventKind = "stopped"
)

// Event is emitted by a worker for every lifecycle transition. Fields not
// relevant to Kind are left at their zero value.
type Event struct {
	Kind         EventKind
	WorkerID     string
	Job          *domain.Job
	JobID        uuid.UUID
	URL          string
	ExtractionID *uuid.UUID
	Error        string
	WillRetry    bool
	JobsReleased int64
}

// Reporter receives worker lifecycle events. Implementations must not
// block the worker loop for long; slow publication should be buffered or
// dropped internally.
type Reporter interface {
	Report(e Event)
}

// Multi fans a single event out to every reporter in order.
type Multi []Reporter

// Report implements Reporter.
func (m Multi) Report(e Event) {
	for _, r := range m {
		r.Report(e)
	}
}
