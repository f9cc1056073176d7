// Package middleware holds the gin middleware for the ops surface.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/finplat/backend/internal/interfaces/http/dto"
)

const (
	// RequestIDHeader carries the caller-supplied request ID, generated
	// when absent.
	RequestIDHeader = "X-Request-ID"
	// TenantIDHeader carries the tenant scope for every accounting call.
	TenantIDHeader = "X-Tenant-ID"

	requestIDKey = "request_id"
	tenantIDKey  = "tenant_id"
)

// RequestID ensures every request carries an ID and echoes it back.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID returns the request ID set by RequestID.
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// RequireTenant rejects requests without a valid tenant header. The ops
// surface sits behind the platform gateway, which authenticates callers;
// tenant scoping is still enforced here.
func RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(TenantIDHeader)
		tenantID, err := uuid.Parse(raw)
		if err != nil || tenantID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusBadRequest,
				dto.Fail(dto.CodeBadTenant, "a valid "+TenantIDHeader+" header is required"))
			return
		}
		c.Set(tenantIDKey, tenantID)
		c.Next()
	}
}

// GetTenantID returns the tenant set by RequireTenant.
func GetTenantID(c *gin.Context) uuid.UUID {
	v, ok := c.Get(tenantIDKey)
	if !ok {
		return uuid.Nil
	}
	id, _ := v.(uuid.UUID)
	return id
}
