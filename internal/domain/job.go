package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobType identifies which processor handles a job.
type JobType string

const (
	JobTypeOCR            JobType = "ocr"
	JobTypeIdentityVerify JobType = "face_verify"
)

// JobTypes lists every accepted job type.
var JobTypes = []JobType{JobTypeOCR, JobTypeIdentityVerify}

// ParseJobType validates a wire value against the closed set of job types.
func ParseJobType(s string) (JobType, error) {
	for _, t := range JobTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidJobType, s)
}

// JobStatus is the lifecycle state of a job
type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// Job is one unit of submitted work.
type Job struct {
	ID             int64           `json:"id"`
	TenantID       string          `json:"tenant_id"`
	JobType        JobType         `json:"job_type"`
	Status         JobStatus       `json:"status"`
	InputReference string          `json:"input_uri"`
	Result         json.RawMessage `json:"result"`
	Error          string          `json:"error"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Summary returns the lightweight list view of the job.
func (j *Job) Summary() JobSummary {
	return JobSummary{
		ID:             j.ID,
		JobType:        j.JobType,
		Status:         j.Status,
		InputReference: j.InputReference,
		CreatedAt:      j.CreatedAt,
	}
}

// Clone returns a copy that shares no mutable memory with j.
func (j *Job) Clone() *Job {
	c := *j
	if j.Result != nil {
		c.Result = append(json.RawMessage(nil), j.Result...)
	}
	return &c
}

// JobSummary is the list projection of a Job.
type JobSummary struct {
	ID             int64     `json:"id"`
	JobType        JobType   `json:"job_type"`
	Status         JobStatus `json:"status"`
	InputReference string    `json:"input_uri"`
	CreatedAt      time.Time `json:"created_at"`
}

// JobPage is one page of a tenant's jobs plus the tenant's total job count.
type JobPage struct {
	Total int          `json:"total"`
	Items []JobSummary `json:"items"`
}
