package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"consultline/pkg/logger"
)

// Timeout bounds each request's context. A handler that returns after the
// deadline without writing gets a 504.
func Timeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			logger.Warn("Request timed out",
				zap.Duration("timeout", timeout),
				zap.Duration("duration", time.Since(start)),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path))

			c.JSON(http.StatusGatewayTimeout, gin.H{
				"success":   false,
				"error":     "Request timeout",
				"errorCode": "REQUEST_TIMEOUT",
			})
			c.Abort()
		}
	}
}
