package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics holds the transport and source metrics
type PrometheusMetrics struct {
	// HTTP request metrics
	HttpRequestsTotal   *prometheus.CounterVec
	HttpRequestDuration *prometheus.HistogramVec
	HttpRequestSize     *prometheus.HistogramVec
	HttpResponseSize    *prometheus.HistogramVec
	HttpInFlight        prometheus.Gauge

	// Ingestion source health metrics
	SourceUp            *prometheus.GaugeVec
	SourceHealthLatency *prometheus.HistogramVec
	RateLimitedRequests prometheus.Counter
}

// NewPrometheusMetrics registers the metrics with reg
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)
	return &PrometheusMetrics{
		HttpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insight_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		HttpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "insight_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		HttpRequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "insight_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "endpoint"},
		),
		HttpResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "insight_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "endpoint"},
		),
		HttpInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "insight_http_requests_in_flight",
			Help: "Number of HTTP requests being served",
		}),

		SourceUp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "insight_source_up",
				Help: "Whether the ingestion source answered its last health check (1=up, 0=down)",
			},
			[]string{"source_type"},
		),
		SourceHealthLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "insight_source_health_check_seconds",
				Help:    "Latency of ingestion source health checks",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source_type"},
		),
		RateLimitedRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "insight_http_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		}),
	}
}

// Middleware records HTTP metrics for every request
func (m *PrometheusMetrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		start := time.Now()
		m.HttpInFlight.Inc()
		defer m.HttpInFlight.Dec()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		endpoint := c.FullPath()
		if endpoint == "" {
			// Unmatched paths share one label
			endpoint = "unmatched"
		}

		m.HttpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
		m.HttpRequestDuration.WithLabelValues(method, endpoint).Observe(duration)

		if c.Request.ContentLength > 0 {
			m.HttpRequestSize.WithLabelValues(method, endpoint).Observe(float64(c.Request.ContentLength))
		}
		if c.Writer.Size() > 0 {
			m.HttpResponseSize.WithLabelValues(method, endpoint).Observe(float64(c.Writer.Size()))
		}
		if c.Writer.Status() == http.StatusTooManyRequests {
			m.RateLimitedRequests.Inc()
		}
	}
}

// UpdateSourceHealth records the outcome of a source health check
func (m *PrometheusMetrics) UpdateSourceHealth(sourceType string, up bool, latency time.Duration) {
	if m == nil {
		return
	}
	value := 0.0
	if up {
		value = 1.0
	}
	m.SourceUp.WithLabelValues(sourceType).Set(value)
	m.SourceHealthLatency.WithLabelValues(sourceType).Observe(latency.Seconds())
}
