package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/raphaelgruber/speechkit-go/internal/models"
)

// SubmitRequest is the body of POST /jobs.
type SubmitRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
	Source struct {
		Type  string `json:"type" binding:"required"`
		Value string `json:"value" binding:"required"`
	} `json:"source" binding:"required"`
	OriginalFilename string `json:"original_filename"`
}

// SubmitResponse is returned once a run is accepted.
type SubmitResponse struct {
	RunID  string       `json:"run_id"`
	Status models.Stage `json:"status"`
}

// StatusResponse answers the status query.
type StatusResponse struct {
	Status models.Stage `json:"status"`
}

// ListResponse wraps the run listing.
type ListResponse struct {
	Runs  []models.PipelineRun `json:"runs"`
	Count int                  `json:"count"`
}

func (s *Server) submitJob(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	id, err := s.runner.Start(c.Request.Context(), models.JobInput{
		UserID:           req.UserID,
		Source:           models.FileSource{Kind: models.SourceKind(req.Source.Type), Value: req.Source.Value},
		OriginalFilename: req.OriginalFilename,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, SubmitResponse{RunID: id, Status: models.StagePending})
}

func (s *Server) listJobs(c *gin.Context) {
	runs, err := s.runner.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Runs: runs, Count: len(runs)})
}

func (s *Server) getJob(c *gin.Context) {
	run, err := s.runner.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) getStatus(c *gin.Context) {
	stage, err := s.runner.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, StatusResponse{Status: stage})
}

func (s *Server) cancelJob(c *gin.Context) {
	id := c.Param("id")
	if err := s.runner.Cancel(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": id, "cancelled": true})
}

func (s *Server) confirmJob(c *gin.Context) {
	job, err := s.runner.Confirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) rejectJob(c *gin.Context) {
	job, err := s.runner.Reject(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) getMetrics(c *gin.Context) {
	if s.metrics == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, s.metrics.Snapshot())
}
