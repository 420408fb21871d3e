package controller

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"insight-gateway/internal/database"
	"insight-gateway/internal/logging"
	"insight-gateway/internal/middleware"
	"insight-gateway/internal/security"
	"insight-gateway/internal/service"
)

// RouterDeps holds everything the HTTP surface is built from. Logger,
// Refresher, Health, Metrics, Gatherer, RateLimiter and Auth are optional.
type RouterDeps struct {
	Logger      *slog.Logger
	Engine      *service.RetrievalService
	Verifier    *service.FactVerifier
	Reports     *service.ReportService
	Refresher   *service.RefreshService
	Health      *database.HealthChecker
	Metrics     *middleware.PrometheusMetrics
	Gatherer    prometheus.Gatherer
	RateLimiter *middleware.RateLimiter
	Auth        *security.AuthMiddleware
	MaxPageSize int
	Version     string
}

func NewRouter(deps RouterDeps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	queryController := NewQueryController(deps.Engine, deps.Verifier, deps.MaxPageSize)
	reportController := NewReportController(deps.Reports)
	adminController := NewAdminController(deps.Engine, deps.Refresher)
	healthController := NewHealthController(deps.Health, deps.Engine, deps.Metrics, deps.Version)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(deps.Metrics.Middleware())
	if deps.RateLimiter != nil {
		router.Use(deps.RateLimiter.RateLimit())
	}

	router.GET("/health", healthController.HealthCheck)
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api/v1")
	if deps.Auth != nil {
		api.Use(deps.Auth.RequireAuth())
	}
	{
		api.GET("/status", adminController.Status)
		api.GET("/integrity", adminController.Integrity)

		customers := api.Group("/customers")
		{
			customers.GET("", queryController.ListCustomers)
			customers.GET("/lookup", queryController.LookupCustomer)
			customers.GET("/orders", queryController.CustomerOrders)
			customers.GET("/:id/orders", queryController.OrdersForCustomer)
		}

		products := api.Group("/products")
		{
			products.GET("", queryController.ProductsByCategory)
			products.GET("/search", queryController.SearchProducts)
			products.GET("/list", queryController.ListProducts)
		}

		api.GET("/orders", queryController.ListOrders)
		api.POST("/aggregate", queryController.Aggregate)
		api.POST("/query", queryController.Execute)
		api.POST("/verify", queryController.Verify)
		api.GET("/reports/executive-summary", reportController.ExecutiveSummary)
	}

	admin := router.Group("/api/v1/admin")
	if deps.Auth != nil {
		admin.Use(deps.Auth.RequireRole(security.RoleAdmin))
	}
	{
		admin.POST("/refresh", adminController.Refresh)
		admin.POST("/cache/sweep", adminController.SweepCache)
	}

	return router
}
