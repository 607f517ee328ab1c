// Package server is the REST surface over the job queue and extraction
// history, grounded on auth/internal/api/server.go's gin wiring and the
// route/status-code contract of ares-server/src/routes.rs.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/andreabozzo/ares/internal/apperrors"
	"github.com/andreabozzo/ares/internal/domain"
	"github.com/andreabozzo/ares/internal/obslog"
	"github.com/andreabozzo/ares/internal/queue"
)

const (
	readTimeoutSeconds  = 10
	writeTimeoutSeconds = 30
	idleTimeoutSeconds  = 120
)

// Queue is the subset of internal/queue.Queue the server depends on.
type Queue interface {
	CreateJob(ctx context.Context, req domain.CreateJobRequest) (*domain.Job, error)
	GetJob(ctx context.Context, jobID uuid.UUID) (*domain.Job, error)
	ListJobs(ctx context.Context, params queue.ListParams) ([]domain.Job, error)
	CancelJob(ctx context.Context, jobID uuid.UUID) error
	HealthCheck(ctx context.Context) error
}

// ExtractionStore is the subset of internal/extraction.Store the server
// depends on.
type ExtractionStore interface {
	GetHistory(ctx context.Context, url, schemaName string, limit int) ([]domain.Extraction, error)
}

// Config controls Server's listen address and bearer-token auth.
type Config struct {
	ListenAddr  string
	BearerToken string
}

// Server is the HTTP front door: job submission/listing/cancellation and
// extraction history, behind bearer-token auth, plus a public /health.
type Server struct {
	cfg    Config
	router *gin.Engine
	http   *http.Server
	queue  Queue
	store  ExtractionStore
	log    obslog.Logger
}

// New builds a Server. Pass a nil obslog.Logger only via obslog.Nop.
func New(cfg Config, q Queue, store ExtractionStore, log obslog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(loggingMiddleware(log))

	s := &Server{cfg: cfg, router: router, queue: q, store: store, log: log}

	router.GET("/health", s.handleHealth)

	v1 := router.Group("/v1")
	v1.Use(s.requireBearerToken())
	v1.POST("/jobs", s.handleCreateJob)
	v1.GET("/jobs", s.handleListJobs)
	v1.GET("/jobs/:id", s.handleGetJob)
	v1.DELETE("/jobs/:id", s.handleCancelJob)
	v1.GET("/extractions", s.handleGetExtractions)

	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  readTimeoutSeconds * time.Second,
		WriteTimeout: writeTimeoutSeconds * time.Second,
		IdleTimeout:  idleTimeoutSeconds * time.Second,
	}
	return s
}

// ListenAndServe blocks serving HTTP until the listener fails or is closed.
func (s *Server) ListenAndServe() error {
	return s.http.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func loggingMiddleware(log obslog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		log.Info("http request",
			obslog.String("method", method),
			obslog.String("path", path),
			obslog.Int("status", c.Writer.Status()),
			obslog.Duration("duration", time.Since(start)),
		)
	}
}

// requireBearerToken rejects requests missing "Authorization: Bearer
// <token>" matching the configured token. An empty configured token
// disables auth entirely, matching a local/dev deployment.
func (s *Server) requireBearerToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.BearerToken == "" {
			c.Next()
			return
		}
		const prefix = "Bearer "
		header := c.GetHeader("Authorization")
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix ||
			subtle.ConstantTimeCompare([]byte(header[len(prefix):]), []byte(s.cfg.BearerToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// --- handlers ---

type createJobRequest struct {
	URL        string          `json:"url" binding:"required"`
	SchemaName string          `json:"schema_name" binding:"required"`
	Schema     domain.JSONBMap `json:"schema" binding:"required"`
	Model      string          `json:"model"`
	BaseURL    string          `json:"base_url"`
	MaxRetries *int            `json:"max_retries"`
}

type createJobResponse struct {
	JobID  uuid.UUID `json:"job_id"`
	Status string    `json:"status"`
}

func (s *Server) handleCreateJob(c *gin.Context) {
	var body createJobRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := s.queue.CreateJob(c.Request.Context(), domain.CreateJobRequest{
		URL:        body.URL,
		SchemaName: body.SchemaName,
		Schema:     body.Schema,
		Model:      body.Model,
		BaseURL:    body.BaseURL,
		MaxRetries: body.MaxRetries,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, createJobResponse{JobID: job.ID, Status: job.Status.String()})
}

type jobListResponse struct {
	Jobs  []domain.Job `json:"jobs"`
	Total int          `json:"total"`
}

func (s *Server) handleListJobs(c *gin.Context) {
	params := queue.ListParams{Limit: 20}
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			if n > 100 {
				n = 100
			}
			params.Limit = n
		}
	}
	if raw := c.Query("status"); raw != "" {
		status := domain.Status(raw)
		params.Status = &status
	}

	jobs, err := s.queue.ListJobs(c.Request.Context(), params)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, jobListResponse{Jobs: jobs, Total: len(jobs)})
}

func (s *Server) handleGetJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	job, err := s.queue.GetJob(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) handleCancelJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	// Fetched first so a missing job reports 404 rather than the 409 that
	// CancelJob's "not in a terminal state" WHERE clause would otherwise
	// produce for both cases.
	job, err := s.queue.GetJob(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		s.respondError(c, err)
		return
	}
	if job.Status.IsTerminal() {
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("job is already in terminal state: %s", job.Status)})
		return
	}

	if err := s.queue.CancelJob(c.Request.Context(), id); err != nil {
		if errors.Is(err, queue.ErrJobAlreadyTerminal) {
			c.JSON(http.StatusConflict, gin.H{"error": "job is already in a terminal state"})
			return
		}
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type extractionHistoryResponse struct {
	Extractions []domain.Extraction `json:"extractions"`
}

func (s *Server) handleGetExtractions(c *gin.Context) {
	url := c.Query("url")
	schemaName := c.Query("schema_name")
	if url == "" || schemaName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url and schema_name are required"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			if n > 100 {
				n = 100
			}
			limit = n
		}
	}

	history, err := s.store.GetHistory(c.Request.Context(), url, schemaName, limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, extractionHistoryResponse{Extractions: history})
}

type healthResponse struct {
	Status string `json:"status"`
	DB     string `json:"db"`
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.queue.HealthCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, healthResponse{Status: "unavailable", DB: "down"})
		return
	}
	c.JSON(http.StatusOK, healthResponse{Status: "ok", DB: "up"})
}

func (s *Server) respondError(c *gin.Context, err error) {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) && appErr.Kind == apperrors.KindSchema {
		c.JSON(http.StatusBadRequest, gin.H{"error": appErr.Error()})
		return
	}
	s.log.Error("request failed", obslog.Err(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
