package reporter

import "github.com/andreabozzo/ares/internal/obslog"

// LogReporter reports every worker event to a structured logger, grounded
// on ares-core/src/worker.rs's TracingWorkerReporter.
type LogReporter struct {
	log obslog.Logger
}

// NewLogReporter builds a LogReporter writing through log.
func NewLogReporter(log obslog.Logger) *LogReporter {
	return &LogReporter{log: log}
}

// Report implements Reporter.
func (r *LogReporter) Report(e Event) {
	switch e.Kind {
	case EventStarted:
		r.log.Info("worker started", obslog.String("worker_id", e.WorkerID))
	case EventPolling:
		r.log.Debug("polling for jobs", obslog.String("worker_id", e.WorkerID))
	case EventJobClaimed:
		r.log.Info("job claimed", obslog.String("job_id", e.JobID.String()), obslog.String("url", e.URL))
	case EventJobStarted:
		r.log.Info("processing job", obslog.String("job_id", e.JobID.String()), obslog.String("url", e.URL))
	case EventJobCompleted:
		fields := []obslog.Field{obslog.String("job_id", e.JobID.String())}
		if e.ExtractionID != nil {
			fields = append(fields, obslog.String("extraction_id", e.ExtractionID.String()))
		}
		r.log.Info("job completed", fields...)
	case EventJobFailed:
		r.log.Warn("job failed",
			obslog.String("job_id", e.JobID.String()),
			obslog.String("error", e.Error),
			obslog.Bool("will_retry", e.WillRetry))
	case EventShuttingDown:
		r.log.Info("worker shutting down",
			obslog.String("worker_id", e.WorkerID),
			obslog.Int64("jobs_released", e.JobsReleased))
	case EventStopped:
		r.log.Info("worker stopped", obslog.String("worker_id", e.WorkerID))
	}
}
