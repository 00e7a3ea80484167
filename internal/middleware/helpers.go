// internal/middleware/helpers.go
package middleware

import (
	toolsvc "qrloop-service/internal/service/tool"

	"github.com/gin-gonic/gin"
)

// MustGetIdentityID gets identity ID from context or panics
func MustGetIdentityID(c *gin.Context) int64 {
	identityID, exists := GetIdentityID(c)
	if !exists {
		panic("identity_id not found in context")
	}
	return identityID
}

// IsAdmin checks if user is an admin
func IsAdmin(c *gin.Context) bool {
	return HasRole(c, "admin") || HasRole(c, "super_admin")
}

// Actor builds the service-level caller from the authenticated context.
func Actor(c *gin.Context) toolsvc.Actor {
	return toolsvc.Actor{
		IdentityID: MustGetIdentityID(c),
		Admin:      IsAdmin(c),
	}
}
