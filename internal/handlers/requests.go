// Package handlers exposes the minimal operator surface: create, start,
// and list scrape jobs, inspect their posts, and export results as CSV.
package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/thiago-paim/twitter-scraping/internal/models"
	"github.com/thiago-paim/twitter-scraping/internal/services"
	"github.com/thiago-paim/twitter-scraping/internal/store"
	"github.com/thiago-paim/twitter-scraping/internal/worker"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RequestsHandler handles scrape job management endpoints
type RequestsHandler struct {
	store    *store.Store
	exporter *services.Exporter
	workers  *worker.WorkerService
}

// NewRequestsHandler creates a new requests handler
func NewRequestsHandler(db *gorm.DB, workers *worker.WorkerService) *RequestsHandler {
	st := store.New(db)
	return &RequestsHandler{
		store:    st,
		exporter: services.NewExporter(st),
		workers:  workers,
	}
}

// HealthCheck returns service health
func (h *RequestsHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// WorkerStatus returns the worker service status
func (h *RequestsHandler) WorkerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.workers.GetStatus())
}

// createRequestInput is the payload for creating a scrape job
type createRequestInput struct {
	Username       string     `json:"username" binding:"required"`
	TwitterID      string     `json:"twitter_id"`
	Since          *time.Time `json:"since"`
	Until          *time.Time `json:"until"`
	IncludeReplies bool       `json:"include_replies"`
	Recurse        bool       `json:"recurse"`
}

// CreateRequest creates a new scrape job in status created
func (h *RequestsHandler) CreateRequest(c *gin.Context) {
	var input createRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job := models.ScrapeJob{
		Username:       input.Username,
		TwitterID:      input.TwitterID,
		Since:          input.Since,
		Until:          input.Until,
		IncludeReplies: input.IncludeReplies,
		Recurse:        input.Recurse,
		Status:         models.JobStatusCreated,
	}
	if err := h.store.CreateJob(&job); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, job)
}

// StartRequest makes a job eligible for admission and triggers an
// admission pass. A finished or interrupted job is reset first.
func (h *RequestsHandler) StartRequest(c *gin.Context) {
	job, ok := h.jobFromPath(c)
	if !ok {
		return
	}

	switch job.Status {
	case models.JobStatusFinished, models.JobStatusInterrupted:
		if err := h.workers.Ledger().Reset(job); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	case models.JobStatusStarted:
		c.JSON(http.StatusConflict, gin.H{"error": "job is already running"})
		return
	}

	h.workers.AdmitNow()
	c.JSON(http.StatusOK, job)
}

// ListRequests lists jobs, optionally filtered by ?status=
func (h *RequestsHandler) ListRequests(c *gin.Context) {
	status := models.JobStatus(c.Query("status"))
	jobs, err := h.store.JobsByStatus(status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": jobs, "count": len(jobs)})
}

// GetRequest returns one job
func (h *RequestsHandler) GetRequest(c *gin.Context) {
	job, ok := h.jobFromPath(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, job)
}

// RequestPosts returns the posts recorded under one job
func (h *RequestsHandler) RequestPosts(c *gin.Context) {
	job, ok := h.jobFromPath(c)
	if !ok {
		return
	}

	posts, err := h.store.PostsForJobs([]uint{job.ID})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts, "count": len(posts)})
}

// exportInput is the payload for a CSV export
type exportInput struct {
	JobIDs []uint `json:"job_ids" binding:"required"`
}

// Export streams the posts of the given jobs as a CSV download
func (h *RequestsHandler) Export(c *gin.Context) {
	var input exportInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	filename := fmt.Sprintf("posts %s.csv", time.Now().Format("2006-01-02 15:04:05"))
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := h.exporter.ExportJobs(c.Writer, input.JobIDs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
}

// jobFromPath loads the job referenced by the :id path parameter
func (h *RequestsHandler) jobFromPath(c *gin.Context) (*models.ScrapeJob, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return nil, false
	}

	job, err := h.store.GetJob(uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return nil, false
	}
	return job, true
}
