package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderXTenantID = "X-Tenant-ID"
	HeaderXUserID   = "X-User-ID"

	ContextTenantID = "tenant_id"
	ContextUserID   = "user_id"
)

// Identity extracts the authenticated tenant/user pair the platform
// gateway asserts via headers. Requests without a valid pair are
// rejected before they reach any session.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, err := uuid.Parse(c.GetHeader(HeaderXTenantID))
		if err != nil || tenantID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
				Code:    http.StatusBadRequest,
				Message: "missing or invalid tenant identity",
				TraceID: c.GetString(ContextRequestID),
			})
			return
		}

		userID, err := uuid.Parse(c.GetHeader(HeaderXUserID))
		if err != nil || userID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
				Code:    http.StatusBadRequest,
				Message: "missing or invalid user identity",
				TraceID: c.GetString(ContextRequestID),
			})
			return
		}

		c.Set(ContextTenantID, tenantID)
		c.Set(ContextUserID, userID)
		c.Next()
	}
}

// TenantID returns the tenant id the identity middleware stored.
func TenantID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(ContextTenantID); ok {
		return v.(uuid.UUID)
	}
	return uuid.Nil
}

// UserID returns the user id the identity middleware stored.
func UserID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(ContextUserID); ok {
		return v.(uuid.UUID)
	}
	return uuid.Nil
}
