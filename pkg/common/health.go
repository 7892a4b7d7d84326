package common

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthResponse is the body of the health and readiness endpoints.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Timestamp string                 `json:"timestamp"`
	Uptime    string                 `json:"uptime,omitempty"`
	Checks    map[string]CheckStatus `json:"checks,omitempty"`
}

// CheckStatus is the outcome of a single dependency check.
type CheckStatus struct {
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// HealthChecker probes one dependency.
type HealthChecker func(ctx context.Context) error

var startTime = time.Now()

func baseHealth(status, serviceName, version string) HealthResponse {
	return HealthResponse{
		Status:    status,
		Service:   serviceName,
		Version:   version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(startTime).String(),
	}
}

// HealthCheck returns a health check handler
func HealthCheck(serviceName, version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, baseHealth("healthy", serviceName, version))
	}
}

// LivenessProbe reports that the process is up.
func LivenessProbe(serviceName, version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, baseHealth("alive", serviceName, version))
	}
}

// ReadinessProbe runs every check in parallel and answers 503 if any fails.
func ReadinessProbe(serviceName, version string, timeout time.Duration, checks map[string]HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		var (
			mu      sync.Mutex
			wg      sync.WaitGroup
			results = make(map[string]CheckStatus, len(checks))
			healthy = true
		)

		for name, check := range checks {
			wg.Add(1)
			go func(name string, check HealthChecker) {
				defer wg.Done()
				start := time.Now()
				err := check(ctx)
				result := CheckStatus{Status: "healthy", Duration: time.Since(start).String()}
				if err != nil {
					result.Status = "unhealthy"
					result.Message = err.Error()
				}

				mu.Lock()
				defer mu.Unlock()
				results[name] = result
				if err != nil {
					healthy = false
				}
			}(name, check)
		}
		wg.Wait()

		resp := baseHealth("ready", serviceName, version)
		resp.Checks = results
		code := http.StatusOK
		if !healthy {
			resp.Status = "not ready"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, resp)
	}
}
