package common

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Timestamp string                 `json:"timestamp"`
	Uptime    string                 `json:"uptime,omitempty"`
	Checks    map[string]CheckStatus `json:"checks,omitempty"`
}

// CheckStatus represents the status of a single dependency check
type CheckStatus struct {
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// HealthCheckFunc checks one dependency
type HealthCheckFunc func(ctx context.Context) error

var startTime = time.Now()

// LivenessProbe answers 200 while the process is serving
func LivenessProbe(serviceName, version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{
			Status:    "alive",
			Service:   serviceName,
			Version:   version,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Uptime:    time.Since(startTime).String(),
		})
	}
}

// ReadinessProbe runs every check in parallel under a 2 s budget. Any failure
// turns the response into 503.
func ReadinessProbe(serviceName, version string, checks map[string]HealthCheckFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		var (
			mu      sync.Mutex
			wg      sync.WaitGroup
			results = make(map[string]CheckStatus, len(checks))
			healthy = true
		)

		for name, check := range checks {
			wg.Add(1)
			go func(name string, check HealthCheckFunc) {
				defer wg.Done()
				start := time.Now()
				err := check(ctx)

				status := CheckStatus{Status: "healthy", Duration: time.Since(start).String()}
				if err != nil {
					status.Status = "unhealthy"
					status.Message = err.Error()
				}

				mu.Lock()
				results[name] = status
				if err != nil {
					healthy = false
				}
				mu.Unlock()
			}(name, check)
		}
		wg.Wait()

		code, status := http.StatusOK, "ready"
		if !healthy {
			code, status = http.StatusServiceUnavailable, "not ready"
		}

		c.JSON(code, HealthResponse{
			Status:    status,
			Service:   serviceName,
			Version:   version,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Uptime:    time.Since(startTime).String(),
			Checks:    results,
		})
	}
}
