package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/prospect/api/handler"
	"github.com/use-agent/prospect/api/middleware"
	"github.com/use-agent/prospect/billing"
	"github.com/use-agent/prospect/cache"
	"github.com/use-agent/prospect/config"
	"github.com/use-agent/prospect/metrics"
	"github.com/use-agent/prospect/pipeline"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health and metrics endpoints are intentionally outside auth so
// monitoring probes always work.
func NewRouter(p *pipeline.Pipeline, credits billing.CreditChecker, q handler.Pinger, cfg *config.Config, cc *cache.Cache, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.Group("/api/v1")

	// Health — no auth required.
	v1.GET("/health", handler.Health(q, startTime))

	// Protected group — auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.Keys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// Search
	protected.POST("/search", handler.Search(p, credits, cc, cfg.Cache.MaxAge))

	return r
}
