package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aura-events/backend/internal/auth"
	"github.com/aura-events/backend/pkg/response"
)

const (
	// ContextOperatorID is the key for the operator ID in gin context.
	ContextOperatorID = "operator_id"
	// ContextUserRole is the key for the operator role in gin context.
	ContextUserRole = "user_role"
	// ContextUserEmail is the key for the operator email in gin context.
	ContextUserEmail = "user_email"
)

// JWT returns a middleware that validates JWT and sets operator claims in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextOperatorID, claims.OperatorID)
		c.Set(ContextUserRole, claims.Role)
		c.Set(ContextUserEmail, claims.Email)
		c.Next()
	}
}
