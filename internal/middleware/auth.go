package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"consultline/pkg/jwt"
	"consultline/pkg/response"
)

// Context keys set by AuthMiddleware
const (
	ContextUserID = "user_id"
	ContextName   = "name"
)

// AuthMiddleware validates the bearer access token and sets user_id and name
// in the Gin context. Channel-scoped rtc tokens are refused here.
func AuthMiddleware(jwtManager *jwt.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := BearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Unauthorized(c, "Authorization header required")
			c.Abort()
			return
		}

		claims, err := jwtManager.ValidateToken(tokenString)
		if err != nil || claims.Channel != "" {
			response.Unauthorized(c, "Invalid token")
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextName, claims.Name)
		c.Next()
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" value
func BearerToken(header string) (string, bool) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// UserID returns the authenticated caller set by AuthMiddleware
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}
