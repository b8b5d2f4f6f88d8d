package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/prospect/models"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Pinger reports connectivity of the scrape queue.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health returns the handler for GET /api/v1/health. Degraded means
// the API is up but the scrape queue is unreachable; SERP-only
// requests still work in that state.
func Health(q Pinger, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := models.HealthResponse{
			Status:  "healthy",
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Queue:   "ok",
			Version: Version,
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := q.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Queue = err.Error()
		}

		c.JSON(http.StatusOK, resp)
	}
}
