package errors

import (
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/richxcame/ride-dispatch/pkg/common"
	"github.com/richxcame/ride-dispatch/pkg/config"
)

var sensitiveHeaders = []string{"Authorization", "Cookie", "X-Api-Key", "Idempotency-Key"}

// InitSentry initializes the Sentry SDK. An empty DSN leaves error
// tracking disabled and is not an error.
func InitSentry(cfg config.SentryConfig, environment, release, serverName string) (bool, error) {
	if cfg.DSN == "" {
		return false, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      environment,
		Release:          release,
		ServerName:       serverName,
		TracesSampleRate: cfg.TracesSampleRate,
		EnableTracing:    cfg.TracesSampleRate > 0,
		AttachStacktrace: true,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			if event.Level == sentry.LevelInfo || event.Level == sentry.LevelDebug {
				return nil
			}
			if event.Request != nil {
				for _, h := range sensitiveHeaders {
					delete(event.Request.Headers, h)
				}
			}
			return event
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

// AddBreadcrumbForRequest adds a breadcrumb for HTTP request
func AddBreadcrumbForRequest(method, route string, statusCode int, duration time.Duration) {
	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Type:      "http",
		Category:  "http.request",
		Level:     sentry.LevelInfo,
		Message:   fmt.Sprintf("%s %s", method, route),
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"method":      method,
			"url":         route,
			"status_code": statusCode,
			"duration_ms": duration.Milliseconds(),
		},
	})
}

// ShouldReportError reports whether err is unexpected enough to send to
// Sentry. Lifecycle outcomes (4xx AppErrors) never are.
func ShouldReportError(err error, statusCode int) bool {
	if err == nil {
		return false
	}

	if appErr, ok := common.AsAppError(err); ok {
		return appErr.Code >= http.StatusInternalServerError
	}

	if statusCode >= 400 && statusCode < 500 && statusCode != http.StatusTooManyRequests {
		return false
	}

	return true
}

// Level maps HTTP status codes to Sentry severity levels
func Level(statusCode int) sentry.Level {
	switch {
	case statusCode >= 500:
		return sentry.LevelError
	case statusCode == http.StatusTooManyRequests:
		return sentry.LevelWarning
	default:
		return sentry.LevelInfo
	}
}
