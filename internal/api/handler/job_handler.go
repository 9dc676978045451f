package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cuongbtq/docjobs/internal/api/dto"
	"github.com/cuongbtq/docjobs/internal/api/storage"
	"github.com/cuongbtq/docjobs/internal/domain"
	"github.com/gin-gonic/gin"
)

// CreateJob handles POST /v1/jobs/create
// Stores the uploaded document and queues a job for it
func (h *JobHandler) CreateJob(c *gin.Context) {
	tenantID := Tenant(c)

	var req dto.CreateJobRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid query parameters"})
		return
	}
	if req.JobType == "" {
		req.JobType = string(domain.JobTypeOCR)
	}

	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dto.ErrorResponse{Error: "file too large"})
			return
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, dto.ErrorResponse{Error: "file is required"})
		return
	}
	if fileHeader.Size == 0 {
		AbortWithError(c, storage.ErrEmptyUpload)
		return
	}

	adm, err := h.svc.Admit(tenantID, req.JobType)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		adm.Abort()
		h.logger.Error("Failed to open upload", slog.Any("error", err))
		AbortWithError(c, err)
		return
	}
	defer file.Close()

	inputRef, err := h.uploads.Save(fileHeader.Filename, file)
	if err != nil {
		adm.Abort()
		h.logger.Error("Failed to save upload",
			slog.String("tenant_id", tenantID),
			slog.Any("error", err),
		)
		AbortWithError(c, err)
		return
	}

	job, err := adm.Commit(inputRef)
	if err != nil {
		h.logger.Error("Failed to create job", slog.Any("error", err))
		if rmErr := h.uploads.Remove(inputRef); rmErr != nil {
			h.logger.Warn("Failed to remove upload of rejected job",
				slog.String("input_ref", inputRef),
				slog.Any("error", rmErr),
			)
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.CreateJobResponse{ID: job.ID, Status: job.Status})
}

// ListJobs handles GET /v1/jobs
// Lists the caller's jobs newest first
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid query parameters"})
		return
	}

	c.JSON(http.StatusOK, h.svc.List(Tenant(c), req.Limit, req.Offset))
}

// GetJob handles GET /v1/jobs/:job_id
// With ?wait=<duration> the call blocks until the job is terminal or the
// wait (capped by the configured maximum) elapses.
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, err := strconv.ParseInt(c.Param("job_id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, dto.ErrorResponse{Error: "job_id must be an integer"})
		return
	}

	var req dto.GetJobRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid query parameters"})
		return
	}

	wait, err := h.parseWait(req.Wait)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, dto.ErrorResponse{Error: "wait must be a duration such as 10s"})
		return
	}

	var job *domain.Job
	if wait > 0 {
		ctx, cancel := context.WithTimeout(c.Request.Context(), wait)
		defer cancel()
		job, err = h.svc.Wait(ctx, Tenant(c), jobID)
	} else {
		job, err = h.svc.Get(Tenant(c), jobID)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// Usage handles GET /v1/usage
func (h *JobHandler) Usage(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Usage(Tenant(c)))
}

func (h *JobHandler) parseWait(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, errors.New("negative wait")
	}
	if h.maxWait > 0 && d > h.maxWait {
		d = h.maxWait
	}
	return d, nil
}
