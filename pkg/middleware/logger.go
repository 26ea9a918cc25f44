package middleware

import (
	"time"

	"github.com/eugene-kirzhanov/vkcup21/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLogger logs one line per HTTP request. Bodies are not logged since
// they carry user coordinates.
func RequestLogger(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("service", serviceName),
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("route", c.FullPath()),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
			zap.Int("response_size", c.Writer.Size()),
		}
		if sessionID := c.Param("id"); sessionID != "" {
			fields = append(fields, zap.String("session_id", sessionID))
		}

		reqLogger := logger.WithContext(c.Request.Context())
		switch {
		case len(c.Errors) > 0:
			fields = append(fields, zap.String("errors", c.Errors.String()))
			reqLogger.Error("request completed with errors", fields...)
		case status >= 500:
			reqLogger.Error("request failed", fields...)
		default:
			reqLogger.Info("request completed", fields...)
		}
	}
}
