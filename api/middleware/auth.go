package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/prospect/config"
	"github.com/use-agent/prospect/models"
)

// tenantContextKey is where Auth stores the resolved tenant.
const tenantContextKey = "tenant"

// Auth returns API-key authentication middleware that resolves each
// key to a tenant identity and subscription tier.
//
// Supports two header styles:
//
//	X-API-Key: <key>
//	Authorization: Bearer <key>
//
// If no keys are configured, the middleware grants open access under an
// anonymous free-tier tenant.
func Auth(keys []config.TenantAccess) gin.HandlerFunc {
	if len(keys) == 0 {
		anonymous := models.Tenant{ID: "anonymous", Tier: "free"}
		return func(c *gin.Context) {
			c.Set(tenantContextKey, anonymous)
			c.Next()
		}
	}

	tenants := make(map[string]models.Tenant, len(keys))
	for _, k := range keys {
		if k.Key != "" {
			tenants[k.Key] = models.Tenant{ID: k.TenantID, Tier: k.Tier}
		}
	}

	return func(c *gin.Context) {
		key := extractAPIKey(c)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.SearchResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeUnauthorized,
					Message: "missing API key: provide X-API-Key header or Authorization: Bearer <key>",
				},
			})
			return
		}

		tenant, valid := tenants[key]
		if !valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.SearchResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeUnauthorized,
					Message: "invalid API key",
				},
			})
			return
		}

		c.Set(tenantContextKey, tenant)
		c.Next()
	}
}

// TenantFrom retrieves the tenant set by Auth. The second return is
// false when the middleware did not run (e.g. auth disabled).
func TenantFrom(c *gin.Context) (models.Tenant, bool) {
	v, ok := c.Get(tenantContextKey)
	if !ok {
		return models.Tenant{}, false
	}
	tenant, ok := v.(models.Tenant)
	return tenant, ok
}

// extractAPIKey tries X-API-Key first, then Authorization: Bearer.
func extractAPIKey(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
