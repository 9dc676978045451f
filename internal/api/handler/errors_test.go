package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuongbtq/docjobs/internal/api/storage"
	"github.com/cuongbtq/docjobs/internal/domain"
	"github.com/cuongbtq/docjobs/internal/queue"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "invalid job type", err: fmt.Errorf("%w: %q", domain.ErrInvalidJobType, "x"), want: http.StatusBadRequest},
		{name: "empty upload", err: fmt.Errorf("failed to write upload: %w", storage.ErrEmptyUpload), want: http.StatusBadRequest},
		{name: "unauthorized", err: domain.ErrUnauthorized, want: http.StatusUnauthorized},
		{name: "quota", err: fmt.Errorf("%w (3)", domain.ErrQuotaExceeded), want: http.StatusPaymentRequired},
		{name: "not found", err: domain.ErrJobNotFound, want: http.StatusNotFound},
		{name: "queue busy", err: domain.ErrQueueBusy, want: http.StatusServiceUnavailable},
		{name: "queue closed", err: queue.ErrClosed, want: http.StatusServiceUnavailable},
		{name: "queue closed at enqueue", err: fmt.Errorf("failed to enqueue job 4: %w", queue.ErrClosed), want: http.StatusServiceUnavailable},
		{name: "rate limited", err: ErrRateLimited, want: http.StatusTooManyRequests},
		{name: "other", err: errors.New("disk full"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestAbortWithError_HidesInternalErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	AbortWithError(c, errors.New("open /var/secret: permission denied"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
	assert.True(t, c.IsAborted())
}

func TestAbortWithError_QuotaMessage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	err := fmt.Errorf("%w (2)", domain.ErrQuotaExceeded)
	AbortWithError(c, err)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.JSONEq(t, `{"error":"`+err.Error()+`"}`, rec.Body.String())
}
