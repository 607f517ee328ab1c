package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/andreabozzo/ares/internal/apperrors"
	"github.com/andreabozzo/ares/internal/breaker"
	"github.com/andreabozzo/ares/internal/domain"
	"github.com/andreabozzo/ares/internal/extractor"
	"github.com/andreabozzo/ares/internal/metrics"
	"github.com/andreabozzo/ares/internal/obslog"
	"github.com/andreabozzo/ares/internal/reporter"
	"github.com/andreabozzo/ares/internal/worker"
)

type fakeQueue struct {
	jobs            []*domain.Job
	completed       []uuid.UUID
	failed          []string
	released        []uuid.UUID
	releasedWorkers []string
}

func (q *fakeQueue) ClaimJob(ctx context.Context, workerID string) (*domain.Job, error) {
	if len(q.jobs) == 0 {
		return nil, nil
	}
	j := q.jobs[0]
	q.jobs = q.jobs[1:]
	return j, nil
}

func (q *fakeQueue) CompleteJob(ctx context.Context, jobID uuid.UUID, extractionID *uuid.UUID) error {
	q.completed = append(q.completed, jobID)
	return nil
}

func (q *fakeQueue) FailJob(ctx context.Context, jobID uuid.UUID, errMsg string, nextRetryAt *time.Time) error {
	q.failed = append(q.failed, errMsg)
	return nil
}

func (q *fakeQueue) ReleaseJob(ctx context.Context, jobID uuid.UUID) error {
	q.released = append(q.released, jobID)
	return nil
}

func (q *fakeQueue) ReleaseWorkerJobs(ctx context.Context, workerID string) (int64, error) {
	q.releasedWorkers = append(q.releasedWorkers, workerID)
	return 0, nil
}

type fakeFetcher struct{}

func (fakeFetcher) Fetch(ctx context.Context, url string) (string, error) { return "<html></html>", nil }

type fakeCleaner struct{}

func (fakeCleaner) Clean(html string) (string, error) { return "clean", nil }

type fakeExtractor struct{}

func (fakeExtractor) Extract(ctx context.Context, content string, schema domain.JSONBMap) (domain.JSONBMap, error) {
	return domain.JSONBMap{"ok": true}, nil
}

type fakeFactory struct{}

func (fakeFactory) Create(model, baseURL string) (extractor.Extractor, error) {
	return fakeExtractor{}, nil
}

type collectingReporter struct {
	events []reporter.Event
}

func (r *collectingReporter) Report(e reporter.Event) { r.events = append(r.events, e) }

func TestWorkerRunProcessesOneJobThenStopsOnCancel(t *testing.T) {
	jobID := uuid.New()
	q := &fakeQueue{jobs: []*domain.Job{{ID: jobID, URL: "https://example.com", SchemaName: "s", MaxRetries: 3}}}
	rep := &collectingReporter{}

	cfg := worker.DefaultConfig("test-worker")
	cfg.PollInterval = 10 * time.Millisecond

	w := worker.New(q, fakeFetcher{}, fakeCleaner{}, fakeFactory{}, nil, breaker.New("test", breaker.DefaultConfig()), rep, obslog.Nop, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(q.completed) != 1 || q.completed[0] != jobID {
		t.Fatalf("expected job %s to be completed, got %v", jobID, q.completed)
	}
	if len(q.releasedWorkers) != 1 {
		t.Fatalf("expected worker jobs released exactly once on shutdown, got %d", len(q.releasedWorkers))
	}

	kinds := make([]reporter.EventKind, 0, len(rep.events))
	for _, e := range rep.events {
		kinds = append(kinds, e.Kind)
	}
	if kinds[0] != reporter.EventStarted {
		t.Errorf("expected first event Started, got %v", kinds[0])
	}
	if kinds[len(kinds)-1] != reporter.EventStopped {
		t.Errorf("expected last event Stopped, got %v", kinds[len(kinds)-1])
	}
}

func TestWorkerBreakerOpenReleasesWithoutConsumingRetry(t *testing.T) {
	jobID := uuid.New()
	job := &domain.Job{ID: jobID, URL: "https://example.com", SchemaName: "s", MaxRetries: 3, RetryCount: 0}
	q := &fakeQueue{jobs: []*domain.Job{job}}
	rep := &collectingReporter{}

	cfg := worker.DefaultConfig("test-worker")
	cfg.PollInterval = 10 * time.Millisecond

	cb := breaker.New("test", breaker.Config{FailureThreshold: 1, SuccessThreshold: 1, RecoveryTimeout: time.Hour})
	cb.RecordFailure(apperrors.NewNetwork("already broken", nil))

	w := worker.New(q, fakeFetcher{}, fakeCleaner{}, fakeFactory{}, nil, cb, rep, obslog.Nop, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(q.failed) != 0 {
		t.Errorf("expected FailJob never called for a breaker-open rejection, got %v", q.failed)
	}
	if len(q.released) != 1 || q.released[0] != jobID {
		t.Fatalf("expected job %s released back to pending, got %v", jobID, q.released)
	}
}

func TestWorkerStateReflectsLifecycle(t *testing.T) {
	q := &fakeQueue{}
	rep := &collectingReporter{}
	cfg := worker.DefaultConfig("idle-worker")
	cfg.PollInterval = 10 * time.Millisecond

	w := worker.New(q, fakeFetcher{}, fakeCleaner{}, fakeFactory{}, nil, breaker.New("test", breaker.DefaultConfig()), rep, obslog.Nop, cfg)

	if w.State() != worker.StateIdle {
		t.Fatalf("expected initial state idle, got %s", w.State())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_ = w.Run(ctx)

	if w.State() != worker.StateStopped {
		t.Fatalf("expected state stopped after Run returns, got %s", w.State())
	}
}

func TestWorkerWithMetricsReportsClaimAndCompletion(t *testing.T) {
	jobID := uuid.New()
	q := &fakeQueue{jobs: []*domain.Job{{ID: jobID, URL: "https://example.com", SchemaName: "s", MaxRetries: 3}}}
	rep := &collectingReporter{}

	cfg := worker.DefaultConfig("metrics-worker")
	cfg.PollInterval = 10 * time.Millisecond

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	w := worker.New(q, fakeFetcher{}, fakeCleaner{}, fakeFactory{}, nil, breaker.New("test", breaker.DefaultConfig()), rep, obslog.Nop, cfg).
		WithMetrics(m)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := testutil.ToFloat64(m.JobsClaimed.WithLabelValues("metrics-worker")); got != 1 {
		t.Errorf("jobs_claimed_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.JobsCompleted.WithLabelValues("metrics-worker")); got != 1 {
		t.Errorf("jobs_completed_total = %v, want 1", got)
	}
}
