package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthStatus represents the status of a health check.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// checkTimeout bounds every individual dependency check.
const checkTimeout = 2 * time.Second

// Check probes one dependency.
type Check func(ctx context.Context) error

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status HealthStatus           `json:"status"`
	Uptime string                 `json:"uptime"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult represents the result of an individual health check.
type CheckResult struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
	Latency string       `json:"latency"`
}

// HealthHandler runs every check and answers 503 when any of them fails.
func HealthHandler(checks map[string]Check) gin.HandlerFunc {
	started := time.Now()

	return func(c *gin.Context) {
		resp := HealthResponse{
			Status: HealthStatusHealthy,
			Uptime: time.Since(started).Truncate(time.Second).String(),
			Checks: make(map[string]CheckResult, len(checks)),
		}

		for name, check := range checks {
			ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
			begin := time.Now()
			err := check(ctx)
			cancel()

			result := CheckResult{Status: HealthStatusHealthy, Latency: time.Since(begin).String()}
			if err != nil {
				result.Status = HealthStatusUnhealthy
				result.Message = err.Error()
				resp.Status = HealthStatusUnhealthy
			}
			resp.Checks[name] = result
		}

		code := http.StatusOK
		if resp.Status != HealthStatusHealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, resp)
	}
}
