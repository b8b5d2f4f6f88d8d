package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/prospect/api/middleware"
	"github.com/use-agent/prospect/billing"
	"github.com/use-agent/prospect/cache"
	"github.com/use-agent/prospect/models"
	"github.com/use-agent/prospect/pipeline"
)

// Search returns the handler for POST /api/v1/search. It validates the
// request, gates it on the tenant's credit balance, and runs the
// search pipeline. Every terminal state produces a well-formed
// SearchResponse; internal faults never reach the client untranslated.
func Search(p *pipeline.Pipeline, credits billing.CreditChecker, cc *cache.Cache, cacheMaxAge time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.SearchResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}
		req.Defaults()

		tenant, ok := middleware.TenantFrom(c)
		if !ok {
			tenant = models.Tenant{ID: "anonymous", Tier: "free"}
		}

		// Credit precondition: the pipeline never starts without it.
		allowed, err := credits.HasCredits(c.Request.Context(), tenant.ID, req.Limit)
		if err == nil && !allowed {
			c.JSON(http.StatusPaymentRequired, models.SearchResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInsufficientCredits,
					Message: "insufficient credits for this request",
				},
			})
			return
		}

		var key string
		if cacheMaxAge > 0 {
			key = cache.Key(tenant.ID, &req)
			if cached, hit := cc.Get(key, cacheMaxAge); hit {
				hitCopy := *cached
				hitCopy.CacheStatus = "hit"
				c.JSON(http.StatusOK, hitCopy)
				return
			}
		}

		resp, perr := p.Run(c.Request.Context(), tenant, &req)
		if perr != nil {
			c.JSON(statusFor(perr.Code), models.SearchResponse{
				Success: false,
				Error:   perr.ToDetail(),
			})
			return
		}

		if cacheMaxAge > 0 {
			// Store a copy: the cached entry is shared with concurrent
			// readers and must never be mutated after Set.
			resp.CacheStatus = "miss"
			stored := *resp
			cc.Set(key, &stored)
		}
		c.JSON(http.StatusOK, resp)
	}
}

// statusFor maps internal error codes to HTTP statuses.
func statusFor(code string) int {
	switch code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case models.ErrCodeInsufficientCredits:
		return http.StatusPaymentRequired
	case models.ErrCodeQueueUnavailable, models.ErrCodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
