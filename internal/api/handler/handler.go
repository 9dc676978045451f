package handler

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/cuongbtq/docjobs/internal/service"
	"github.com/gin-gonic/gin"
)

const tenantKey = "tenant_id"

// HealthChecker is satisfied by optional backing services such as the
// PostgreSQL archive.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// BrokerChecker reports whether the message broker connection is up.
type BrokerChecker interface {
	IsConnected() bool
}

// UploadStore keeps uploaded documents until the worker reads them.
type UploadStore interface {
	Save(filename string, r io.Reader) (string, error)
	Remove(path string) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger         *slog.Logger
	AppName        string
	Service        *service.Service
	Tenants        *service.Tenants
	Uploads        UploadStore
	MaxUploadBytes int64
	MaxWait        time.Duration
	Database       HealthChecker // optional
	Broker         BrokerChecker // optional
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger         *slog.Logger
	svc            *service.Service
	uploads        UploadStore
	maxUploadBytes int64
	maxWait        time.Duration
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:         deps.Logger,
		svc:            deps.Service,
		uploads:        deps.Uploads,
		maxUploadBytes: deps.MaxUploadBytes,
		maxWait:        deps.MaxWait,
	}
}

// SetTenant records the authenticated tenant on the request context
func SetTenant(c *gin.Context, tenantID string) {
	c.Set(tenantKey, tenantID)
}

// Tenant returns the tenant set by the auth middleware
func Tenant(c *gin.Context) string {
	return c.GetString(tenantKey)
}
