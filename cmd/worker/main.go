// Command worker runs a pool of scrape-and-extract workers against the
// durable job queue, grounded on crawler/internal/bootstrap/app.go's
// startup sequencing and ares-core/src/worker.rs's run loop.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/andreabozzo/ares/internal/breaker"
	"github.com/andreabozzo/ares/internal/cleaner"
	"github.com/andreabozzo/ares/internal/config"
	"github.com/andreabozzo/ares/internal/domain"
	"github.com/andreabozzo/ares/internal/extraction"
	"github.com/andreabozzo/ares/internal/extractor"
	"github.com/andreabozzo/ares/internal/fetcher"
	"github.com/andreabozzo/ares/internal/metrics"
	"github.com/andreabozzo/ares/internal/obslog"
	"github.com/andreabozzo/ares/internal/profiling"
	"github.com/andreabozzo/ares/internal/queue"
	"github.com/andreabozzo/ares/internal/reporter"
	"github.com/andreabozzo/ares/internal/retry"
	"github.com/andreabozzo/ares/internal/worker"
)

const poolDrainTimeout = 30 * time.Second

func main() {
	cfgPath := config.PathFromEnv("config/worker.yaml")
	cfg, err := config.LoadWithDefaults[config.WorkerConfig](cfgPath, (*config.WorkerConfig).SetDefaults)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := obslog.Must(obslog.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
	defer log.Sync()

	profiler, err := profiling.Start("worker", cfg.PyroscopeAddr)
	if err != nil {
		log.Error("failed to start profiler, continuing without it", obslog.Err(err))
	}
	defer profiler.Stop()

	log.Info("starting worker pool",
		obslog.Int("worker_count", cfg.WorkerCount),
		obslog.String("worker_id_prefix", cfg.WorkerIDPrefix),
	)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatal("failed to connect to database", obslog.Err(err))
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	if cfg.Database.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	}
	defer db.Close()

	q := queue.New(db)
	extractions := extraction.New(db)

	fetch := fetcher.New(fetcher.Config{
		UserAgent:    cfg.Fetcher.UserAgent,
		Timeout:      cfg.Fetcher.Timeout,
		PerHostDelay: cfg.Fetcher.PerHostDelay,
	})
	clean := cleaner.New()

	extractorCfg := extractor.Config{
		MaxRetries:     cfg.Extractor.MaxRetries,
		MaxTokens:      cfg.Extractor.MaxTokens,
		Temperature:    cfg.Extractor.Temperature,
		ExtractTimeout: cfg.Extractor.ExtractTimeout,
	}
	factory := extractor.NewAnthropicFactory(cfg.Extractor.APIKey, extractorCfg)

	breakerCfg := breaker.Config{
		FailureThreshold:           cfg.Breaker.FailureThreshold,
		SuccessThreshold:           cfg.Breaker.SuccessThreshold,
		RecoveryTimeout:            cfg.Breaker.RecoveryTimeout,
		RateLimitBackoffMultiplier: cfg.Breaker.RateLimitBackoffMultiplier,
		MaxRecoveryTimeout:         cfg.Breaker.MaxRecoveryTimeout,
	}

	rep := buildReporter(cfg, log)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	startMetricsServer(reg, log)

	metricsCtx, stopMetricsPoll := context.WithCancel(context.Background())
	defer stopMetricsPoll()
	go pollJobsByStatus(metricsCtx, q, m, log)

	breakerCfg.OnStateChange = func(workerID string, from, to breaker.State) {
		log.Warn("breaker state change",
			obslog.String("worker_id", workerID),
			obslog.String("from", from.String()),
			obslog.String("to", to.String()),
		)
		m.BreakerState.WithLabelValues(workerID).Set(float64(to))
	}

	pool := worker.NewPool(
		cfg.WorkerCount,
		q,
		fetch,
		clean,
		factory,
		extractions,
		breakerCfg,
		rep,
		log,
		worker.Config{
			WorkerID:      cfg.WorkerIDPrefix,
			PollInterval:  cfg.PollInterval,
			RetryConfig:   retryConfigFrom(cfg),
			SkipUnchanged: cfg.SkipUnchanged,
		},
	).WithMetrics(m)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool.Start(ctx)
	log.Info("worker pool started")

	<-ctx.Done()
	log.Info("shutdown signal received, draining in-flight jobs")

	if err := pool.Stop(poolDrainTimeout); err != nil {
		log.Error("worker pool did not drain cleanly", obslog.Err(err))
		os.Exit(1)
	}

	log.Info("worker pool exited cleanly")
}

// startMetricsServer exposes reg on :9090/metrics for Prometheus scraping.
// Errors are logged rather than fatal: a dead metrics endpoint shouldn't
// take the worker pool down with it.
func startMetricsServer(reg *prometheus.Registry, log obslog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(":9090", mux); err != nil {
			log.Error("metrics server exited", obslog.Err(err))
		}
	}()
}

// pollJobsByStatus refreshes the jobs_by_status gauge on a fixed interval
// until ctx is cancelled, giving an operator a live count per status
// without every Queue caller needing to know about metrics.
func pollJobsByStatus(ctx context.Context, q *queue.Queue, m *metrics.Metrics, log obslog.Logger) {
	statuses := []domain.Status{
		domain.StatusPending, domain.StatusRunning,
		domain.StatusCompleted, domain.StatusFailed, domain.StatusCancelled,
	}

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	refresh := func() {
		for _, status := range statuses {
			count, err := q.CountByStatus(ctx, status)
			if err != nil {
				log.Error("failed to refresh jobs_by_status gauge", obslog.String("status", string(status)), obslog.Err(err))
				continue
			}
			m.JobsByStatus.WithLabelValues(string(status)).Set(float64(count))
		}
	}

	refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}

func retryConfigFrom(cfg *config.WorkerConfig) retry.Config {
	return retry.Config{
		MaxRetries: cfg.Retry.MaxRetries,
		MaxDelay:   cfg.Retry.MaxDelay,
	}
}

func buildReporter(cfg *config.WorkerConfig, log obslog.Logger) reporter.Reporter {
	reporters := reporter.Multi{reporter.NewLogReporter(log)}

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Pass,
			DB:       cfg.Redis.DB,
		})
		reporters = append(reporters, reporter.NewStreamReporter(client, log))
	}

	return reporters
}
