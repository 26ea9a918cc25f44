// Package errors wires Sentry error reporting.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/eugene-kirzhanov/vkcup21/pkg/logger"
	"github.com/getsentry/sentry-go"
)

// SentryConfig holds configuration for Sentry integration
type SentryConfig struct {
	DSN              string
	Environment      string
	Release          string
	ServerName       string
	SampleRate       float64
	TracesSampleRate float64
}

// InitSentry initializes the Sentry SDK. It reports false when no DSN is
// configured, in which case every capture below is a no-op.
func InitSentry(config SentryConfig) (bool, error) {
	if config.DSN == "" {
		return false, nil
	}

	if config.SampleRate <= 0 {
		config.SampleRate = 1.0
	}
	if config.TracesSampleRate <= 0 {
		config.TracesSampleRate = 0.1
		if config.Environment != "production" {
			config.TracesSampleRate = 1.0
		}
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              config.DSN,
		Environment:      config.Environment,
		Release:          config.Release,
		ServerName:       config.ServerName,
		SampleRate:       config.SampleRate,
		TracesSampleRate: config.TracesSampleRate,
		AttachStacktrace: true,
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			if event.Level == sentry.LevelInfo || event.Level == sentry.LevelDebug {
				return nil
			}
			return event
		},
		BeforeBreadcrumb: func(breadcrumb *sentry.Breadcrumb, hint *sentry.BreadcrumbHint) *sentry.Breadcrumb {
			// maps requests carry the API key in the query string
			if breadcrumb.Data != nil {
				delete(breadcrumb.Data, "query")
			}
			return breadcrumb
		},
	})
	if err != nil {
		return false, fmt.Errorf("failed to initialize sentry: %w", err)
	}
	return true, nil
}

// Flush flushes the Sentry buffer
func Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// CaptureErrorWithContext reports err tagged with the correlation and
// session IDs carried by ctx.
func CaptureErrorWithContext(ctx context.Context, err error, extras map[string]interface{}) *sentry.EventID {
	if err == nil {
		return nil
	}

	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
	}

	var id *sentry.EventID
	hub.WithScope(func(scope *sentry.Scope) {
		for key, value := range extras {
			scope.SetExtra(key, value)
		}
		if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
			scope.SetTag("correlation_id", correlationID)
		}
		if sessionID := logger.SessionIDFromContext(ctx); sessionID != "" {
			scope.SetTag("session_id", sessionID)
		}
		id = hub.CaptureException(err)
	})
	return id
}

// AddBreadcrumbForRequest adds a breadcrumb for an HTTP request
func AddBreadcrumbForRequest(method, path string, statusCode int, duration time.Duration) {
	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Type:      "http",
		Category:  "http.request",
		Level:     sentry.LevelInfo,
		Message:   method + " " + path,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"method":      method,
			"url":         path,
			"status_code": statusCode,
			"duration_ms": duration.Milliseconds(),
		},
	})
}

// ShouldReportError filters out cancellations and client errors. Rate
// limiting (429) from an upstream is still reported.
func ShouldReportError(err error, statusCode int) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) {
		return false
	}
	if statusCode >= 400 && statusCode < 500 && statusCode != http.StatusTooManyRequests {
		return false
	}
	return true
}
