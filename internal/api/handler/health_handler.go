package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/docjobs/internal/api/dto"
	"github.com/gin-gonic/gin"
)

const (
	statusOK          = "ok"
	statusUnavailable = "unavailable"
)

// Health handles GET /health
func Health(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := dto.HealthResponse{OK: true, App: deps.AppName}

		if deps.Database != nil {
			resp.Database = statusOK
			if err := deps.Database.HealthCheck(c.Request.Context()); err != nil {
				deps.Logger.Warn("Database health check failed", slog.Any("error", err))
				resp.OK = false
				resp.Database = statusUnavailable
			}
		}

		if deps.Broker != nil {
			resp.Broker = statusOK
			if !deps.Broker.IsConnected() {
				deps.Logger.Warn("Broker connection is down")
				resp.OK = false
				resp.Broker = statusUnavailable
			}
		}

		if !resp.OK {
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}
