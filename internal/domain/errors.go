package domain

import "errors"

var (
	// ErrInvalidJobType is returned when a submission names an unknown job type
	ErrInvalidJobType = errors.New("job_type must be ocr|face_verify")

	// ErrQuotaExceeded is returned when the tenant's monthly document limit is reached
	ErrQuotaExceeded = errors.New("monthly document limit exceeded")

	// ErrJobNotFound is returned for missing jobs and for jobs owned by another tenant
	ErrJobNotFound = errors.New("job not found")

	// ErrQueueBusy is returned when the job queue has no free slot
	ErrQueueBusy = errors.New("job queue is full")

	// ErrUnauthorized is returned when a credential is not in the allow-set
	ErrUnauthorized = errors.New("invalid API key")

	// ErrTerminalState is returned when mutating a job that already finished
	ErrTerminalState = errors.New("job already in terminal state")
)

// ProcessingError wraps any failure raised while a processor handles a job.
type ProcessingError struct {
	JobType JobType
	Err     error
}

func (e *ProcessingError) Error() string {
	return string(e.JobType) + " processing failed: " + e.Err.Error()
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// NewProcessingError creates a new processing error
func NewProcessingError(jobType JobType, err error) error {
	return &ProcessingError{JobType: jobType, Err: err}
}
