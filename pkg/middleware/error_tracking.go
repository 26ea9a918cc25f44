package middleware

import (
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/eugene-kirzhanov/vkcup21/pkg/errors"
	"github.com/eugene-kirzhanov/vkcup21/pkg/logger"
	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SentryMiddleware attaches a Sentry hub to each request and reports panics
// before re-panicking into the recovery middleware.
func SentryMiddleware() gin.HandlerFunc {
	return sentrygin.New(sentrygin.Options{
		Repanic:         true,
		WaitForDelivery: false,
		Timeout:         2 * time.Second,
	})
}

// ErrorHandler reports unexpected handler errors and bare 5xx responses.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		apperrors.AddBreadcrumbForRequest(c.Request.Method, c.FullPath(), status, duration)

		for _, ginErr := range c.Errors {
			if apperrors.ShouldReportError(ginErr.Err, status) {
				captureError(c, ginErr.Err, status, duration)
			}
		}
		if status >= http.StatusInternalServerError && len(c.Errors) == 0 {
			captureError(c, fmt.Errorf("HTTP %d: %s %s", status, c.Request.Method, c.FullPath()), status, duration)
		}
	}
}

// Recovery turns panics into a 500 JSON response.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.WithContext(c.Request.Context()).Error("panic recovered",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
			zap.Stack("stacktrace"),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   gin.H{"code": http.StatusInternalServerError, "message": "internal server error"},
		})
	})
}

func captureError(c *gin.Context, err error, status int, duration time.Duration) {
	hub := sentrygin.GetHubFromContext(c)
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
	}

	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(c.Request)
		scope.SetLevel(sentry.LevelError)
		scope.SetTag("http.method", c.Request.Method)
		scope.SetTag("http.status_code", fmt.Sprintf("%d", status))
		scope.SetTag("endpoint", c.FullPath())
		if id := GetCorrelationID(c); id != "" {
			scope.SetTag("correlation_id", id)
		}
		if sessionID := c.Param("id"); sessionID != "" {
			scope.SetTag("session_id", sessionID)
		}
		scope.SetContext("http", map[string]interface{}{
			"status_code": status,
			"duration_ms": duration.Milliseconds(),
		})
		hub.CaptureException(err)
	})
}
