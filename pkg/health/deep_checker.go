// Package health reports the state of the service's dependencies.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/eugene-kirzhanov/vkcup21/pkg/common"
	"github.com/eugene-kirzhanov/vkcup21/pkg/resilience"
	"github.com/gin-gonic/gin"
)

// Dependency states.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// CheckFunc checks one dependency.
type CheckFunc = common.HealthCheckFunc

// DependencyStatus represents the health status of a single dependency
type DependencyStatus struct {
	Name      string        `json:"name"`
	Status    string        `json:"status"`
	Critical  bool          `json:"critical"`
	Latency   time.Duration `json:"latency_ms"`
	Message   string        `json:"message,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
}

// DeepHealthStatus represents the complete health status of the service
type DeepHealthStatus struct {
	Status       string                      `json:"status"`
	Version      string                      `json:"version,omitempty"`
	Uptime       time.Duration               `json:"uptime_seconds"`
	Dependencies map[string]DependencyStatus `json:"dependencies"`
	Breakers     map[string]BreakerStatus    `json:"circuit_breakers,omitempty"`
	CheckedAt    time.Time                   `json:"checked_at"`
}

// BreakerStatus represents the status of a circuit breaker
type BreakerStatus struct {
	Name   string `json:"name"`
	State  string `json:"state"`
	Allows bool   `json:"allows_requests"`
}

type dependency struct {
	check    CheckFunc
	critical bool
}

// DeepChecker checks every registered dependency and breaker. Results are
// cached for CacheTTL.
type DeepChecker struct {
	mu           sync.RWMutex
	dependencies map[string]dependency
	breakers     map[string]*resilience.CircuitBreaker
	version      string
	startTime    time.Time
	timeout      time.Duration
	cacheTTL     time.Duration
	lastResult   *DeepHealthStatus
	lastChecked  time.Time
}

// DeepCheckerConfig holds configuration for the deep checker
type DeepCheckerConfig struct {
	Version  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// DefaultDeepCheckerConfig returns sensible defaults
func DefaultDeepCheckerConfig() DeepCheckerConfig {
	return DeepCheckerConfig{
		Version:  "unknown",
		Timeout:  2 * time.Second,
		CacheTTL: 10 * time.Second,
	}
}

// NewDeepChecker creates a new deep health checker
func NewDeepChecker(config DeepCheckerConfig) *DeepChecker {
	return &DeepChecker{
		dependencies: make(map[string]dependency),
		breakers:     make(map[string]*resilience.CircuitBreaker),
		version:      config.Version,
		startTime:    time.Now(),
		timeout:      config.Timeout,
		cacheTTL:     config.CacheTTL,
	}
}

// AddDependency registers a dependency check. A failing critical dependency makes the
// service unhealthy, any other failure only degrades it.
func (d *DeepChecker) AddDependency(name string, critical bool, check CheckFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dependencies[name] = dependency{check: check, critical: critical}
	d.lastResult = nil
}

// AddCircuitBreaker adds a circuit breaker to monitor. Nil breakers are ignored.
func (d *DeepChecker) AddCircuitBreaker(name string, breaker *resilience.CircuitBreaker) {
	if breaker == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.breakers[name] = breaker
	d.lastResult = nil
}

// Check performs a deep health check on all dependencies
func (d *DeepChecker) Check(ctx context.Context) *DeepHealthStatus {
	d.mu.RLock()
	if d.lastResult != nil && time.Since(d.lastChecked) < d.cacheTTL {
		result := d.lastResult
		d.mu.RUnlock()
		return result
	}
	dependencies := make(map[string]dependency, len(d.dependencies))
	for name, dep := range d.dependencies {
		dependencies[name] = dep
	}
	breakers := make(map[string]*resilience.CircuitBreaker, len(d.breakers))
	for name, b := range d.breakers {
		breakers[name] = b
	}
	d.mu.RUnlock()

	status := &DeepHealthStatus{
		Status:       StatusHealthy,
		Version:      d.version,
		Uptime:       time.Since(d.startTime),
		Dependencies: make(map[string]DependencyStatus, len(dependencies)),
		Breakers:     make(map[string]BreakerStatus, len(breakers)),
		CheckedAt:    time.Now(),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, dep := range dependencies {
		wg.Add(1)
		go func(name string, dep dependency) {
			defer wg.Done()
			depStatus := d.checkDependency(ctx, name, dep)

			mu.Lock()
			defer mu.Unlock()
			status.Dependencies[name] = depStatus
			if depStatus.Status == StatusHealthy {
				return
			}
			if dep.critical {
				status.Status = StatusUnhealthy
			} else if status.Status == StatusHealthy {
				status.Status = StatusDegraded
			}
		}(name, dep)
	}
	wg.Wait()

	for name, breaker := range breakers {
		allows := breaker.Allow()
		state := "closed"
		if !allows {
			state = "open"
			if status.Status == StatusHealthy {
				status.Status = StatusDegraded
			}
		}
		status.Breakers[name] = BreakerStatus{Name: name, State: state, Allows: allows}
	}

	d.mu.Lock()
	d.lastResult = status
	d.lastChecked = time.Now()
	d.mu.Unlock()

	return status
}

func (d *DeepChecker) checkDependency(ctx context.Context, name string, dep dependency) DependencyStatus {
	start := time.Now()
	status := DependencyStatus{Name: name, Critical: dep.critical, CheckedAt: start}

	checkCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := dep.check(checkCtx); err != nil {
		status.Status = StatusUnhealthy
		status.Message = err.Error()
	} else {
		status.Status = StatusHealthy
	}
	status.Latency = time.Since(start)
	return status
}

// GinHandler returns a Gin handler for the deep health check endpoint
func (d *DeepChecker) GinHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := d.Check(c.Request.Context())

		httpStatus := http.StatusOK
		if status.Status == StatusUnhealthy {
			httpStatus = http.StatusServiceUnavailable
		}
		c.JSON(httpStatus, status)
	}
}

// ReadinessChecks returns the critical checks, for use with a readiness endpoint.
func (d *DeepChecker) ReadinessChecks() map[string]CheckFunc {
	d.mu.RLock()
	defer d.mu.RUnlock()

	checks := make(map[string]CheckFunc)
	for name, dep := range d.dependencies {
		if dep.critical {
			checks[name] = dep.check
		}
	}
	return checks
}
