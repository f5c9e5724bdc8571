package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/meepleai/meepleai-api/auth"
)

// CorrelationIDHeader carries the request correlation ID. Incoming values
// are propagated; absent ones are generated.
const CorrelationIDHeader = "X-Correlation-ID"

// errorJSON is the uniform error envelope for every non-2xx response.
func errorJSON(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"error":         message,
		"code":          code,
		"correlationId": c.GetString("correlation_id"),
	})
}

// CorrelationMiddleware assigns each request a correlation ID and echoes it
// in the response headers.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("correlation_id", id)
		c.Header(CorrelationIDHeader, id)
		c.Next()
	}
}

// AuthMiddleware validates the bearer token and stores the user identity on
// the context.
func AuthMiddleware(validator *auth.JWTValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			errorJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing authorization header")
			c.Abort()
			return
		}

		claims, err := validator.ValidateToken(header)
		if err != nil {
			errorJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
			c.Abort()
			return
		}

		c.Set("user_id", claims.Sub)
		c.Set("user_email", claims.Email)
		c.Set("user_role", claims.Role)
		c.Next()
	}
}

// RequireRole rejects callers below the required role in the
// user < editor < admin hierarchy.
func RequireRole(required string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString("user_role")
		if !auth.HasRole(role, required) {
			errorJSON(c, http.StatusForbidden, "FORBIDDEN", "insufficient role")
			c.Abort()
			return
		}
		c.Next()
	}
}

// userID returns the authenticated user's ID, or aborts with 401.
func userID(c *gin.Context) (string, bool) {
	id := c.GetString("user_id")
	if id == "" {
		errorJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "user not found in context")
		c.Abort()
		return "", false
	}
	return id, true
}
