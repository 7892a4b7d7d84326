package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/richxcame/ride-dispatch/pkg/common"
	"github.com/richxcame/ride-dispatch/pkg/errors"
	"github.com/richxcame/ride-dispatch/pkg/logger"
	"go.uber.org/zap"
)

// SentryMiddleware attaches a Sentry hub to every request
func SentryMiddleware() gin.HandlerFunc {
	return sentrygin.New(sentrygin.Options{
		Repanic:         true,
		WaitForDelivery: false,
		Timeout:         2 * time.Second,
	})
}

// ErrorHandler reports unexpected failures to Sentry. It runs after the
// handler chain so it sees the final status and the actor, if any.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()
		route := routeOf(c)

		errors.AddBreadcrumbForRequest(c.Request.Method, route, statusCode, duration)

		reported := false
		for _, err := range c.Errors {
			if errors.ShouldReportError(err.Err, statusCode) {
				captureError(c, err.Err, statusCode, duration)
				reported = true
			}
		}

		if statusCode >= http.StatusInternalServerError && !reported {
			hub := hubFor(c, statusCode)
			hub.CaptureMessage(fmt.Sprintf("HTTP %d: %s %s", statusCode, c.Request.Method, route))
		}
	}
}

// RecoveryWithSentry recovers from panics, reports them and answers 500
func RecoveryWithSentry() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if recovered := recover(); recovered != nil {
				hub := hubFor(c, http.StatusInternalServerError)
				hub.Scope().SetContext("panic", map[string]interface{}{
					"value":      fmt.Sprintf("%v", recovered),
					"stacktrace": string(debug.Stack()),
				})
				hub.RecoverWithContext(c.Request.Context(), recovered)

				logger.ErrorContext(c.Request.Context(), "panic recovered",
					zap.Any("panic", recovered),
					zap.String("route", routeOf(c)),
				)

				common.AppErrorResponse(c, common.NewInternalError("an unexpected error occurred", nil))
				c.Abort()
			}
		}()

		c.Next()
	}
}

func captureError(c *gin.Context, err error, statusCode int, duration time.Duration) {
	hub := hubFor(c, statusCode)
	hub.Scope().SetContext("http", map[string]interface{}{
		"method":      c.Request.Method,
		"route":       routeOf(c),
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
		"user_agent":  c.Request.UserAgent(),
	})
	hub.CaptureException(err)
}

// hubFor returns the request hub with request, actor and correlation
// context applied.
func hubFor(c *gin.Context, statusCode int) *sentry.Hub {
	hub := sentrygin.GetHubFromContext(c)
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
	}

	scope := hub.Scope()
	scope.SetRequest(c.Request)
	scope.SetLevel(errors.Level(statusCode))
	scope.SetTag("http.method", c.Request.Method)
	scope.SetTag("http.status_code", fmt.Sprintf("%d", statusCode))
	scope.SetTag("endpoint", routeOf(c))

	if correlationID := GetCorrelationID(c); correlationID != "" {
		scope.SetTag("correlation_id", correlationID)
	}

	if actor, err := GetActor(c); err == nil {
		scope.SetUser(sentry.User{ID: actor.ID.String(), IPAddress: c.ClientIP()})
		scope.SetTag("user.role", string(actor.Role))
	}

	return hub
}

func routeOf(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return c.Request.URL.Path
}
