// Package api exposes the pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/raphaelgruber/speechkit-go/internal/metrics"
	"github.com/raphaelgruber/speechkit-go/internal/models"
	"github.com/raphaelgruber/speechkit-go/internal/workflow"
)

// Runner is the part of the workflow engine the API drives.
type Runner interface {
	Start(ctx context.Context, input models.JobInput) (string, error)
	Get(ctx context.Context, id string) (models.PipelineRun, error)
	Status(ctx context.Context, id string) (models.Stage, error)
	List(ctx context.Context) ([]models.PipelineRun, error)
	Cancel(ctx context.Context, id string) error
	Confirm(ctx context.Context, id string) (models.TranscriptionJob, error)
	Reject(ctx context.Context, id string) (models.TranscriptionJob, error)
	Events() *workflow.EventBus
}

// Server routes HTTP requests to the workflow engine.
type Server struct {
	runner  Runner
	metrics *metrics.Collector
	logger  *slog.Logger
	router  *gin.Engine
}

// New builds the router. collector may be nil.
func New(runner Runner, collector *metrics.Collector, logger *slog.Logger) *Server {
	s := &Server{
		runner:  runner,
		metrics: collector,
		logger:  logger,
		router:  gin.New(),
	}
	s.router.Use(gin.Recovery(), RequestLogger(logger))
	s.routes()
	return s
}

// Handler returns the http.Handler to serve.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	s.router.GET("/metrics", s.getMetrics)

	jobs := s.router.Group("/jobs")
	{
		jobs.POST("", s.submitJob)
		jobs.GET("", s.listJobs)
		jobs.GET("/:id", s.getJob)
		jobs.GET("/:id/status", s.getStatus)
		jobs.POST("/:id/cancel", s.cancelJob)
		jobs.POST("/:id/confirm", s.confirmJob)
		jobs.POST("/:id/reject", s.rejectJob)
		jobs.GET("/:id/events", s.streamEvents)
	}
}

// writeError maps domain errors to status codes.
func writeError(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, workflow.ErrRunNotFound):
		code = http.StatusNotFound
	case errors.Is(err, workflow.ErrRunFinished), errors.Is(err, models.ErrInvalidTransition):
		code = http.StatusConflict
	case errors.Is(err, workflow.ErrInvalidInput):
		code = http.StatusBadRequest
	}
	if code == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(code, gin.H{"error": err.Error()})
}
