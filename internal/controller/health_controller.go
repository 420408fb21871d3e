package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"insight-gateway/internal/database"
	"insight-gateway/internal/middleware"
	"insight-gateway/internal/service"
)

type HealthResponse struct {
	Status     string                      `json:"status"`
	Timestamp  time.Time                   `json:"timestamp"`
	Service    string                      `json:"service"`
	Version    string                      `json:"version"`
	Generation uint64                      `json:"generation"`
	Source     *database.HealthCheckResult `json:"source,omitempty"`
}

type HealthController struct {
	checker *database.HealthChecker
	engine  *service.RetrievalService
	metrics *middleware.PrometheusMetrics
	version string
}

// NewHealthController creates the controller. checker may be nil when no
// source is configured.
func NewHealthController(checker *database.HealthChecker, engine *service.RetrievalService, metrics *middleware.PrometheusMetrics, version string) *HealthController {
	return &HealthController{
		checker: checker,
		engine:  engine,
		metrics: metrics,
		version: version,
	}
}

// HealthCheck reports "healthy" when the source answers, "degraded" when it
// does not but data is loaded, and "unhealthy" (503) otherwise.
func (hc *HealthController) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:     "healthy",
		Timestamp:  time.Now(),
		Service:    "insight-gateway",
		Version:    hc.version,
		Generation: hc.engine.Generation(),
	}

	if hc.checker != nil {
		result := hc.checker.CheckSourceHealth(c.Request.Context())
		resp.Source = result
		hc.metrics.UpdateSourceHealth(result.SourceType, result.Healthy(), result.Latency)
		if !result.Healthy() {
			resp.Status = "degraded"
		}
	}
	if resp.Generation == 0 && resp.Status != "healthy" {
		resp.Status = "unhealthy"
	}

	statusCode := http.StatusOK
	if resp.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, resp)
}
