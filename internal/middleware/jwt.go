package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/clipstream/backend/internal/auth"
	"github.com/clipstream/backend/pkg/response"
)

const (
	// ContextUserID is the key for the principal id in gin context.
	ContextUserID = "user_id"
	// ContextTenant is the key for the principal's tenant in gin context.
	ContextTenant = "tenant"
	// ContextUserRole is the key for the principal's role in gin context.
	ContextUserRole = "user_role"
)

// JWT returns a middleware that validates the bearer token and sets the
// principal in context. A ?token= query parameter is accepted as a fallback
// because media players cannot attach Authorization headers to range
// requests.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if header := c.GetHeader("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				response.Unauthorized(c, "invalid authorization header")
				c.Abort()
				return
			}
			token = parts[1]
		} else {
			token = c.Query("token")
		}
		if token == "" {
			response.Unauthorized(c, "missing authorization token")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextTenant, claims.Tenant)
		c.Set(ContextUserRole, claims.Role)
		c.Next()
	}
}
