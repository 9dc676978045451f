package router

import (
	"github.com/cuongbtq/docjobs/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// Options tunes router middleware
type Options struct {
	RequestsPerSecond float64
	Burst             int
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, opts Options) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", handler.Health(deps))

	jobHandler := handler.NewJobHandler(deps)

	v1 := r.Group("/v1")
	v1.Use(AuthMiddleware(deps.Tenants))
	v1.Use(RateLimitMiddleware(opts.RequestsPerSecond, opts.Burst))
	{
		jobs := v1.Group("/jobs")
		{
			// POST /v1/jobs/create?job_type=ocr|face_verify - Upload a document and queue a job
			jobs.POST("/create", jobHandler.CreateJob)

			// GET /v1/jobs?limit=&offset= - List the caller's jobs
			jobs.GET("", jobHandler.ListJobs)

			// GET /v1/jobs/:job_id - Get job details, optionally waiting for completion
			jobs.GET("/:job_id", jobHandler.GetJob)
		}

		// GET /v1/usage - Current period document usage
		v1.GET("/usage", jobHandler.Usage)
	}

	return r
}
