package dto

import (
	"github.com/cuongbtq/docjobs/internal/domain"
)

type CreateJobRequest struct {
	JobType string `form:"job_type"`
}

type CreateJobResponse struct {
	ID     int64            `json:"id"`
	Status domain.JobStatus `json:"status"`
}

type ListJobsRequest struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

type GetJobRequest struct {
	Wait string `form:"wait"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	OK       bool   `json:"ok"`
	App      string `json:"app"`
	Database string `json:"database,omitempty"`
	Broker   string `json:"broker,omitempty"`
}
