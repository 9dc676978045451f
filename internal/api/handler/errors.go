package handler

import (
	"errors"
	"net/http"

	"github.com/cuongbtq/docjobs/internal/api/dto"
	"github.com/cuongbtq/docjobs/internal/api/storage"
	"github.com/cuongbtq/docjobs/internal/domain"
	"github.com/cuongbtq/docjobs/internal/queue"
	"github.com/gin-gonic/gin"
)

// ErrRateLimited is reported when a tenant exceeds its request rate
var ErrRateLimited = errors.New("rate limit exceeded")

// StatusFor maps a domain error to its HTTP status code
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidJobType), errors.Is(err, storage.ErrEmptyUpload):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrQuotaExceeded):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrQueueBusy), errors.Is(err, queue.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// AbortWithError writes {"error": ...} with the mapped status. Internal
// errors are not echoed to the client.
func AbortWithError(c *gin.Context, err error) {
	status := StatusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		msg = "internal server error"
	case http.StatusNotFound:
		msg = "Not found"
	case http.StatusServiceUnavailable, http.StatusTooManyRequests:
		c.Header("Retry-After", "1")
	}
	c.Error(err) //nolint:errcheck
	c.AbortWithStatusJSON(status, dto.ErrorResponse{Error: msg})
}
