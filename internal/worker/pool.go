package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/andreabozzo/ares/internal/breaker"
	"github.com/andreabozzo/ares/internal/extractor"
	"github.com/andreabozzo/ares/internal/metrics"
	"github.com/andreabozzo/ares/internal/obslog"
	"github.com/andreabozzo/ares/internal/pipeline"
	"github.com/andreabozzo/ares/internal/reporter"
)

// Pool runs N independent Worker loops, each with its own breaker instance.
// Unlike crawler/internal/worker/pool.go's semaphore-bounded job dispatcher,
// concurrency here is simply "how many workers are running": each Worker
// already self-paces via its own poll loop, so the pool's only job is to
// start them, wait for them, and drain on Stop.
type Pool struct {
	workers []*Worker
	log     obslog.Logger

	mu       sync.Mutex
	wg       sync.WaitGroup
	cancel   context.CancelFunc
	running  bool
}

// NewPool builds a Pool of count workers sharing the given dependencies.
// Each worker gets its own worker_id ("ares-worker-<n>") and its own
// Breaker instance, since circuit state is meaningful per-worker: one
// worker hammering a broken endpoint should not stop its siblings from
// trying a healthy one.
func NewPool(
	count int,
	queue Queue,
	fetcher pipeline.Fetcher,
	cleaner pipeline.Cleaner,
	extractorFactory extractor.Factory,
	store Store,
	breakerCfg breaker.Config,
	rep reporter.Reporter,
	log obslog.Logger,
	cfgTemplate Config,
) *Pool {
	workers := make([]*Worker, 0, count)
	for i := 0; i < count; i++ {
		cfg := cfgTemplate
		cfg.WorkerID = fmt.Sprintf("%s-%d", cfgTemplate.WorkerID, i)
		cb := breaker.New(cfg.WorkerID, breakerCfg)
		workers = append(workers, New(queue, fetcher, cleaner, extractorFactory, store, cb, rep, log, cfg))
	}
	return &Pool{workers: workers, log: log}
}

// WithMetrics attaches m to every worker in the pool.
func (p *Pool) WithMetrics(m *metrics.Metrics) *Pool {
	for _, w := range p.workers {
		w.WithMetrics(m)
	}
	return p
}

// Start launches every worker's Run loop in its own goroutine.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	for _, w := range p.workers {
		w := w
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			if err := w.Run(ctx); err != nil {
				p.log.Error("worker exited with error", obslog.Err(err))
			}
		}()
	}
}

// Stop cancels every worker's context and waits up to timeout for them to
// finish releasing their in-flight jobs before returning.
func (p *Pool) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	p.running = false
	p.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("worker pool did not drain within %s", timeout)
	}
}

// Stats returns a Stats snapshot for every worker in the pool, indexed by
// position.
func (p *Pool) Stats() []Stats {
	stats := make([]Stats, len(p.workers))
	for i, w := range p.workers {
		stats[i] = w.Stats()
	}
	return stats
}
