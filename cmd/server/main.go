// Command server runs the REST API over the job queue and extraction
// history, grounded on search/cmd/httpd/main.go's startup/shutdown shape.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/andreabozzo/ares/internal/config"
	"github.com/andreabozzo/ares/internal/extraction"
	"github.com/andreabozzo/ares/internal/obslog"
	"github.com/andreabozzo/ares/internal/queue"
	"github.com/andreabozzo/ares/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfgPath := config.PathFromEnv("config/server.yaml")
	cfg, err := config.LoadWithDefaults[config.ServerConfig](cfgPath, (*config.ServerConfig).SetDefaults)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := obslog.Must(obslog.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
	defer log.Sync()

	log.Info("starting server", obslog.String("listen_addr", cfg.ListenAddr))

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

	srv := server.New(server.Config{
		ListenAddr:  cfg.ListenAddr,
		BearerToken: cfg.BearerToken,
	}, q, extractions, log)

	go func() {
		if startErr := srv.ListenAndServe(); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
			log.Fatal("server exited unexpectedly", obslog.Err(startErr))
		}
	}()

	log.Info("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", obslog.Err(err))
		os.Exit(1)
	}

	log.Info("server exited cleanly")
}
