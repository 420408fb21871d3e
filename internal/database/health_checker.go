package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"insight-gateway/internal/database/drivers"
)

// HealthChecker performs reachability checks on the ingestion source
type HealthChecker struct {
	source  drivers.Source
	timeout time.Duration

	mu     sync.RWMutex
	latest *HealthCheckResult
}

// NewHealthChecker creates a new HealthChecker instance
func NewHealthChecker(source drivers.Source, timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthChecker{
		source:  source,
		timeout: timeout,
	}
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	SourceType string        `json:"sourceType"`
	Category   string        `json:"category"`
	Status     string        `json:"status"`
	Message    string        `json:"message,omitempty"`
	Latency    time.Duration `json:"latency"`
	CheckedAt  time.Time     `json:"checkedAt"`
}

// Healthy reports whether the check succeeded
func (r *HealthCheckResult) Healthy() bool {
	return r != nil && r.Status == "healthy"
}

// CheckSourceHealth tests the source connection and remembers the outcome
func (hc *HealthChecker) CheckSourceHealth(ctx context.Context) *HealthCheckResult {
	startTime := time.Now()

	result := &HealthCheckResult{
		CheckedAt: startTime,
	}

	if hc.source == nil {
		result.Status = "error"
		result.Message = "no source configured"
		hc.store(result)
		return result
	}
	result.SourceType = hc.source.GetSourceTypeName()
	result.Category = string(hc.source.GetCategory())

	ctx, cancel := context.WithTimeout(ctx, hc.timeout)
	defer cancel()

	err := hc.source.TestConnection(ctx)
	result.Latency = time.Since(startTime)

	if err != nil {
		result.Status = "unhealthy"
		result.Message = fmt.Sprintf("Connection test failed: %v", err)
	} else {
		result.Status = "healthy"
		result.Message = "Connection successful"
	}

	hc.store(result)
	return result
}

// Latest returns the outcome of the most recent check, nil before the first
func (hc *HealthChecker) Latest() *HealthCheckResult {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.latest
}

func (hc *HealthChecker) store(result *HealthCheckResult) {
	hc.mu.Lock()
	hc.latest = result
	hc.mu.Unlock()
}
