// Package worker runs the self-driving claim→process loop, grounded on
// ares-core/src/worker.rs's WorkerService.run/process_job, with the
// atomic-state tracking idiom of crawler/internal/worker/worker.go
// adapted from a pool-dispatched job handler onto a single long-lived
// polling loop per worker.
package worker

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/andreabozzo/ares/internal/apperrors"
	"github.com/andreabozzo/ares/internal/breaker"
	"github.com/andreabozzo/ares/internal/domain"
	"github.com/andreabozzo/ares/internal/extractor"
	"github.com/andreabozzo/ares/internal/metrics"
	"github.com/andreabozzo/ares/internal/obslog"
	"github.com/andreabozzo/ares/internal/pipeline"
	"github.com/andreabozzo/ares/internal/reporter"
	"github.com/andreabozzo/ares/internal/retry"
)

// State is the worker's current position, tracked lock-free for cheap
// concurrent inspection by health/metrics endpoints.
type State int32

const (
	StateIdle State = iota
	StateBusy
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Queue is the subset of internal/queue.Queue the worker needs.
type Queue interface {
	ClaimJob(ctx context.Context, workerID string) (*domain.Job, error)
	CompleteJob(ctx context.Context, jobID uuid.UUID, extractionID *uuid.UUID) error
	FailJob(ctx context.Context, jobID uuid.UUID, errMsg string, nextRetryAt *time.Time) error
	ReleaseJob(ctx context.Context, jobID uuid.UUID) error
	ReleaseWorkerJobs(ctx context.Context, workerID string) (int64, error)
}

// Store is the extraction store used to build each job's Pipeline.
type Store = pipeline.Store

// Config configures a Worker's polling cadence and retry policy.
type Config struct {
	WorkerID      string
	PollInterval  time.Duration
	RetryConfig   retry.Config
	SkipUnchanged bool
}

// DefaultConfig mirrors ares-core/src/job.rs's WorkerConfig defaults.
func DefaultConfig(workerID string) Config {
	return Config{
		WorkerID:     workerID,
		PollInterval: 5 * time.Second,
		RetryConfig:  retry.DefaultConfig(),
	}
}

// Worker polls Queue for claimable jobs and drives each one through a
// breaker-guarded Pipeline until ctx is cancelled.
type Worker struct {
	queue             Queue
	fetcher           pipeline.Fetcher
	cleaner           pipeline.Cleaner
	extractorFactory  extractor.Factory
	store             Store
	breaker           *breaker.Breaker
	reporter          reporter.Reporter
	log               obslog.Logger
	cfg               Config
	metrics           *metrics.Metrics

	state         atomic.Int32
	jobsProcessed atomic.Int64
	jobsSucceeded atomic.Int64
	jobsFailed    atomic.Int64
}

// New builds a Worker. breaker guards every pipeline invocation, so a
// misbehaving LLM endpoint or fetch target degrades this worker's
// throughput without crashing it.
func New(
	queue Queue,
	fetcher pipeline.Fetcher,
	cleaner pipeline.Cleaner,
	extractorFactory extractor.Factory,
	store Store,
	cb *breaker.Breaker,
	rep reporter.Reporter,
	log obslog.Logger,
	cfg Config,
) *Worker {
	w := &Worker{
		queue: queue, fetcher: fetcher, cleaner: cleaner,
		extractorFactory: extractorFactory, store: store,
		breaker: cb, reporter: rep, log: log, cfg: cfg,
	}
	w.state.Store(int32(StateIdle))
	return w
}

// WithMetrics attaches a Metrics instance the worker reports job counters
// and pipeline duration through. Unset (nil), the worker runs exactly as
// before with no metrics calls, which is what every existing test relies
// on.
func (w *Worker) WithMetrics(m *metrics.Metrics) *Worker {
	w.metrics = m
	return w
}

// State returns the worker's current lifecycle state.
func (w *Worker) State() State { return State(w.state.Load()) }

// Stats is a point-in-time snapshot of a worker's throughput.
type Stats struct {
	Processed int64
	Succeeded int64
	Failed    int64
	State     State
}

// Stats returns the worker's current counters.
func (w *Worker) Stats() Stats {
	return Stats{
		Processed: w.jobsProcessed.Load(),
		Succeeded: w.jobsSucceeded.Load(),
		Failed:    w.jobsFailed.Load(),
		State:     w.State(),
	}
}

// Run drives the claim→process loop until ctx is cancelled, then releases
// any job this worker still held so another worker can pick it up, and
// returns.
func (w *Worker) Run(ctx context.Context) error {
	w.reporter.Report(reporter.Event{Kind: reporter.EventStarted, WorkerID: w.cfg.WorkerID})

	for {
		if ctx.Err() != nil {
			break
		}

		w.reporter.Report(reporter.Event{Kind: reporter.EventPolling, WorkerID: w.cfg.WorkerID})
		w.state.Store(int32(StateIdle))

		job, err := w.queue.ClaimJob(ctx, w.cfg.WorkerID)
		switch {
		case err != nil:
			w.log.Error("failed to claim job", obslog.Err(err))
			if !sleepOrDone(ctx, w.cfg.PollInterval*2) {
				goto shutdown
			}
		case job == nil:
			if !sleepOrDone(ctx, w.cfg.PollInterval) {
				goto shutdown
			}
		default:
			w.reporter.Report(reporter.Event{Kind: reporter.EventJobClaimed, Job: job, JobID: job.ID, URL: job.URL})
			w.state.Store(int32(StateBusy))
			if w.metrics != nil {
				w.metrics.JobsClaimed.WithLabelValues(w.cfg.WorkerID).Inc()
			}
			w.processJob(ctx, job)
			w.jobsProcessed.Add(1)
		}
	}

shutdown:
	w.state.Store(int32(StateStopping))
	released, err := w.queue.ReleaseWorkerJobs(context.Background(), w.cfg.WorkerID)
	if err != nil {
		w.log.Error("failed to release worker jobs on shutdown", obslog.Err(err))
		released = 0
	}
	w.reporter.Report(reporter.Event{Kind: reporter.EventShuttingDown, WorkerID: w.cfg.WorkerID, JobsReleased: released})
	w.state.Store(int32(StateStopped))
	w.reporter.Report(reporter.Event{Kind: reporter.EventStopped, WorkerID: w.cfg.WorkerID})
	return nil
}

// sleepOrDone waits for d or ctx cancellation, returning false if the
// context was cancelled first.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// writeOutcome runs fn against a context detached from the run loop's
// cancellation, so a CompleteJob/FailJob write started just as Run's
// shutdown signal fires still gets a chance to land instead of failing
// immediately and leaving the row stuck at status='running' for
// ReleaseWorkerJobs to reset back to pending, which would requeue and
// reprocess work already done.
func (w *Worker) writeOutcome(fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return fn(ctx)
}

func (w *Worker) processJob(ctx context.Context, job *domain.Job) {
	w.reporter.Report(reporter.Event{Kind: reporter.EventJobStarted, JobID: job.ID, URL: job.URL})

	ex, err := w.extractorFactory.Create(job.Model, job.BaseURL)
	if err != nil {
		errMsg := err.Error()
		w.reporter.Report(reporter.Event{Kind: reporter.EventJobFailed, JobID: job.ID, Error: errMsg, WillRetry: false})
		if failErr := w.writeOutcome(func(wctx context.Context) error {
			return w.queue.FailJob(wctx, job.ID, errMsg, nil)
		}); failErr != nil {
			w.log.Error("failed to mark job failed", obslog.String("job_id", job.ID.String()), obslog.Err(failErr))
		}
		w.jobsFailed.Add(1)
		if w.metrics != nil {
			w.metrics.JobsFailed.WithLabelValues(w.cfg.WorkerID, "false").Inc()
		}
		return
	}

	p := pipeline.New(w.fetcher, w.cleaner, ex, w.store, w.log).WithSkipUnchanged(w.cfg.SkipUnchanged)

	start := time.Now()
	var result *pipeline.Result
	execErr := w.breaker.Execute(ctx, func(ctx context.Context) error {
		r, err := p.Run(ctx, job.URL, job.SchemaName, job.Schema, job.Model)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	var rejected *breaker.ErrOpen
	if w.metrics != nil && !errors.As(execErr, &rejected) {
		w.metrics.PipelineDuration.WithLabelValues(w.cfg.WorkerID).Observe(time.Since(start).Seconds())
	}

	if execErr == nil {
		w.reporter.Report(reporter.Event{
			Kind: reporter.EventJobCompleted, JobID: job.ID, ExtractionID: extractionIDPtr(result),
		})
		if err := w.writeOutcome(func(wctx context.Context) error {
			return w.queue.CompleteJob(wctx, job.ID, extractionIDPtr(result))
		}); err != nil {
			w.log.Error("failed to mark job completed", obslog.String("job_id", job.ID.String()), obslog.Err(err))
		}
		w.jobsSucceeded.Add(1)
		if w.metrics != nil {
			w.metrics.JobsCompleted.WithLabelValues(w.cfg.WorkerID).Inc()
		}
		return
	}

	if openErr, ok := execErr.(*breaker.ErrOpen); ok {
		// The pipeline never ran, so this must not consume one of the job's
		// limited retry attempts the way a real extraction failure would:
		// release it back to pending untouched, to be reclaimed once the
		// breaker recovers.
		w.reporter.Report(reporter.Event{Kind: reporter.EventJobFailed, JobID: job.ID, Error: openErr.Error(), WillRetry: true})
		if err := w.writeOutcome(func(wctx context.Context) error {
			return w.queue.ReleaseJob(wctx, job.ID)
		}); err != nil {
			w.log.Error("failed to release job for breaker-open retry", obslog.String("job_id", job.ID.String()), obslog.Err(err))
		}
		if !sleepOrDone(ctx, w.cfg.PollInterval) {
			w.log.Debug("context cancelled while backing off a breaker-open job", obslog.String("job_id", job.ID.String()))
		}
		return
	}

	errMsg, isRetryable := classifyExecErr(execErr)
	canRetry := job.CanRetry() && isRetryable

	w.reporter.Report(reporter.Event{Kind: reporter.EventJobFailed, JobID: job.ID, Error: errMsg, WillRetry: canRetry})

	var nextRetry *time.Time
	if canRetry {
		t := w.cfg.RetryConfig.NextRetryAt(time.Now(), job.RetryCount+1)
		nextRetry = &t
	}
	if err := w.writeOutcome(func(wctx context.Context) error {
		return w.queue.FailJob(wctx, job.ID, errMsg, nextRetry)
	}); err != nil {
		w.log.Error("failed to mark job as failed", obslog.String("job_id", job.ID.String()), obslog.Err(err))
	}
	w.jobsFailed.Add(1)
	if w.metrics != nil {
		w.metrics.JobsFailed.WithLabelValues(w.cfg.WorkerID, strconv.FormatBool(isRetryable)).Inc()
	}
}

func extractionIDPtr(r *pipeline.Result) *uuid.UUID {
	if r == nil || r.ExtractionID == uuid.Nil {
		return nil
	}
	id := r.ExtractionID
	return &id
}

// classifyExecErr defers to the pipeline error's own classification.
// *breaker.ErrOpen is handled separately by the caller before this is
// reached, since a breaker rejection should never consume a retry slot.
func classifyExecErr(err error) (msg string, retryable bool) {
	return err.Error(), apperrors.Retryable(err)
}
