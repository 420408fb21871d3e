package service

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector collects and aggregates retrieval metrics. Per-operation
// figures are kept in memory for the statistics endpoint; when a registerer
// is supplied the same events are exported to Prometheus.
type MetricsCollector struct {
	metrics      map[string]*OperationMetrics
	metricsMutex sync.RWMutex

	globalMetrics *GlobalMetrics
	globalMutex   sync.RWMutex

	prom *retrievalMetrics
}

// OperationMetrics holds metrics for a single retrieval operation
type OperationMetrics struct {
	Operation            string    `json:"operation"`
	TotalQueries         int64     `json:"totalQueries"`
	SuccessfulQueries    int64     `json:"successfulQueries"`
	FailedQueries        int64     `json:"failedQueries"`
	CacheHits            int64     `json:"cacheHits"`
	FuzzyFallbacks       int64     `json:"fuzzyFallbacks"`
	FullScans            int64     `json:"fullScans"`
	TotalExecutionTimeNs int64     `json:"totalExecutionTimeNs"`
	MinExecutionTimeNs   int64     `json:"minExecutionTimeNs"`
	MaxExecutionTimeNs   int64     `json:"maxExecutionTimeNs"`
	AvgExecutionTimeNs   int64     `json:"avgExecutionTimeNs"`
	TotalRowsReturned    int64     `json:"totalRowsReturned"`
	LastQueryTime        time.Time `json:"lastQueryTime"`
	LastError            string    `json:"lastError,omitempty"`
	LastErrorTime        time.Time `json:"lastErrorTime,omitempty"`
}

// GlobalMetrics holds gateway-wide metrics
type GlobalMetrics struct {
	TotalQueries         int64            `json:"totalQueries"`
	SuccessfulQueries    int64            `json:"successfulQueries"`
	FailedQueries        int64            `json:"failedQueries"`
	TotalExecutionTimeNs int64            `json:"totalExecutionTimeNs"`
	QueriesByOperation   map[string]int64 `json:"queriesByOperation"`
	RefreshesAccepted    int64            `json:"refreshesAccepted"`
	RefreshesRejected    int64            `json:"refreshesRejected"`
	ClaimsVerified       int64            `json:"claimsVerified"`
	ClaimsUnsupported    int64            `json:"claimsUnsupported"`
	StartTime            time.Time        `json:"startTime"`
}

// QueryMetrics represents metrics for a single query execution
type QueryMetrics struct {
	Operation       string
	Success         bool
	Cached          bool
	Fuzzy           bool
	FullScan        bool
	ExecutionTimeNs int64
	RowsReturned    int64
	Error           string
	Timestamp       time.Time
}

type retrievalMetrics struct {
	queries       *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
	generation    prometheus.Gauge
	refreshes     *prometheus.CounterVec
	claims        *prometheus.CounterVec
	sweptEntries  prometheus.Counter
}

// NewMetricsCollector creates a new metrics collector. A nil registerer
// keeps metrics in memory only.
func NewMetricsCollector(reg prometheus.Registerer) *MetricsCollector {
	mc := &MetricsCollector{
		metrics: make(map[string]*OperationMetrics),
		globalMetrics: &GlobalMetrics{
			QueriesByOperation: make(map[string]int64),
			StartTime:          time.Now(),
		},
	}
	if reg != nil {
		mc.prom = newRetrievalMetrics(reg)
	}
	return mc
}

func newRetrievalMetrics(reg prometheus.Registerer) *retrievalMetrics {
	factory := promauto.With(reg)
	return &retrievalMetrics{
		queries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insight_queries_total",
				Help: "Total number of retrieval queries",
			},
			[]string{"operation", "status"},
		),
		queryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "insight_query_duration_seconds",
				Help:    "Retrieval query latency in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"operation"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insight_cache_lookups_total",
				Help: "Query cache lookups by result",
			},
			[]string{"operation", "result"},
		),
		generation: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "insight_data_generation",
				Help: "Currently published data generation",
			},
		),
		refreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insight_refreshes_total",
				Help: "Data refresh attempts by outcome",
			},
			[]string{"outcome"},
		),
		claims: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insight_claims_total",
				Help: "Verified claims by outcome",
			},
			[]string{"outcome"},
		),
		sweptEntries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "insight_cache_swept_entries_total",
				Help: "Stale cache entries removed by sweeps",
			},
		),
	}
}

// RecordQuery records metrics for a query execution
func (mc *MetricsCollector) RecordQuery(metrics *QueryMetrics) {
	if mc == nil || metrics == nil {
		return
	}

	mc.metricsMutex.Lock()
	opMetrics, exists := mc.metrics[metrics.Operation]
	if !exists {
		opMetrics = &OperationMetrics{
			Operation:          metrics.Operation,
			MinExecutionTimeNs: metrics.ExecutionTimeNs,
			MaxExecutionTimeNs: metrics.ExecutionTimeNs,
		}
		mc.metrics[metrics.Operation] = opMetrics
	}

	opMetrics.TotalQueries++
	opMetrics.TotalExecutionTimeNs += metrics.ExecutionTimeNs
	opMetrics.TotalRowsReturned += metrics.RowsReturned
	opMetrics.LastQueryTime = metrics.Timestamp

	if metrics.Success {
		opMetrics.SuccessfulQueries++
	} else {
		opMetrics.FailedQueries++
		opMetrics.LastError = metrics.Error
		opMetrics.LastErrorTime = metrics.Timestamp
	}
	if metrics.Cached {
		opMetrics.CacheHits++
	}
	if metrics.Fuzzy {
		opMetrics.FuzzyFallbacks++
	}
	if metrics.FullScan {
		opMetrics.FullScans++
	}

	if metrics.ExecutionTimeNs < opMetrics.MinExecutionTimeNs {
		opMetrics.MinExecutionTimeNs = metrics.ExecutionTimeNs
	}
	if metrics.ExecutionTimeNs > opMetrics.MaxExecutionTimeNs {
		opMetrics.MaxExecutionTimeNs = metrics.ExecutionTimeNs
	}
	opMetrics.AvgExecutionTimeNs = opMetrics.TotalExecutionTimeNs / opMetrics.TotalQueries
	mc.metricsMutex.Unlock()

	mc.globalMutex.Lock()
	mc.globalMetrics.TotalQueries++
	mc.globalMetrics.TotalExecutionTimeNs += metrics.ExecutionTimeNs
	if metrics.Success {
		mc.globalMetrics.SuccessfulQueries++
	} else {
		mc.globalMetrics.FailedQueries++
	}
	mc.globalMetrics.QueriesByOperation[metrics.Operation]++
	mc.globalMutex.Unlock()

	if mc.prom != nil {
		status := "success"
		if !metrics.Success {
			status = "error"
		}
		mc.prom.queries.WithLabelValues(metrics.Operation, status).Inc()
		mc.prom.queryDuration.WithLabelValues(metrics.Operation).Observe(float64(metrics.ExecutionTimeNs) / 1e9)
		if metrics.Success {
			result := "miss"
			if metrics.Cached {
				result = "hit"
			}
			mc.prom.cacheLookups.WithLabelValues(metrics.Operation, result).Inc()
		}
	}
}

// RecordRefresh records the outcome of a refresh and the generation now live
func (mc *MetricsCollector) RecordRefresh(accepted bool, generation uint64) {
	if mc == nil {
		return
	}
	mc.globalMutex.Lock()
	if accepted {
		mc.globalMetrics.RefreshesAccepted++
	} else {
		mc.globalMetrics.RefreshesRejected++
	}
	mc.globalMutex.Unlock()

	if mc.prom != nil {
		outcome := "rejected"
		if accepted {
			outcome = "accepted"
		}
		mc.prom.refreshes.WithLabelValues(outcome).Inc()
		mc.prom.generation.Set(float64(generation))
	}
}

// RecordClaim records a fact verification outcome
func (mc *MetricsCollector) RecordClaim(verified bool) {
	if mc == nil {
		return
	}
	mc.globalMutex.Lock()
	if verified {
		mc.globalMetrics.ClaimsVerified++
	} else {
		mc.globalMetrics.ClaimsUnsupported++
	}
	mc.globalMutex.Unlock()

	if mc.prom != nil {
		outcome := "unsupported"
		if verified {
			outcome = "verified"
		}
		mc.prom.claims.WithLabelValues(outcome).Inc()
	}
}

// RecordSweep records the number of stale entries removed by a cache sweep
func (mc *MetricsCollector) RecordSweep(removed int) {
	if mc == nil || mc.prom == nil || removed <= 0 {
		return
	}
	mc.prom.sweptEntries.Add(float64(removed))
}

// GetOperationMetrics returns a copy of the metrics of one operation
func (mc *MetricsCollector) GetOperationMetrics(operation string) (*OperationMetrics, bool) {
	mc.metricsMutex.RLock()
	defer mc.metricsMutex.RUnlock()

	metrics, exists := mc.metrics[operation]
	if !exists {
		return nil, false
	}
	copy := *metrics
	return &copy, true
}

// GetAllMetrics returns metrics for all operations
func (mc *MetricsCollector) GetAllMetrics() map[string]*OperationMetrics {
	mc.metricsMutex.RLock()
	defer mc.metricsMutex.RUnlock()

	result := make(map[string]*OperationMetrics, len(mc.metrics))
	for op, metrics := range mc.metrics {
		copy := *metrics
		result[op] = &copy
	}
	return result
}

// GetGlobalMetrics returns global gateway metrics
func (mc *MetricsCollector) GetGlobalMetrics() *GlobalMetrics {
	mc.globalMutex.RLock()
	defer mc.globalMutex.RUnlock()

	copy := *mc.globalMetrics
	copy.QueriesByOperation = make(map[string]int64, len(mc.globalMetrics.QueriesByOperation))
	for k, v := range mc.globalMetrics.QueriesByOperation {
		copy.QueriesByOperation[k] = v
	}
	return &copy
}

// GetMetricsSummary returns a summary of metrics
func (mc *MetricsCollector) GetMetricsSummary() map[string]interface{} {
	global := mc.GetGlobalMetrics()

	uptime := time.Since(global.StartTime)

	summary := map[string]interface{}{
		"uptime_seconds":        uptime.Seconds(),
		"total_queries":         global.TotalQueries,
		"successful_queries":    global.SuccessfulQueries,
		"failed_queries":        global.FailedQueries,
		"success_rate":          0.0,
		"avg_execution_time_ms": 0.0,
		"queries_by_operation":  global.QueriesByOperation,
		"refreshes_accepted":    global.RefreshesAccepted,
		"refreshes_rejected":    global.RefreshesRejected,
		"claims_verified":       global.ClaimsVerified,
		"claims_unsupported":    global.ClaimsUnsupported,
	}

	if global.TotalQueries > 0 {
		summary["success_rate"] = float64(global.SuccessfulQueries) / float64(global.TotalQueries)
		summary["avg_execution_time_ms"] = (float64(global.TotalExecutionTimeNs) / float64(global.TotalQueries)) / 1e6
	}

	return summary
}

// GetTopOperations returns operations ordered by query count, busiest first
func (mc *MetricsCollector) GetTopOperations(limit int) []string {
	mc.globalMutex.RLock()
	defer mc.globalMutex.RUnlock()

	type opCount struct {
		op    string
		count int64
	}

	counts := make([]opCount, 0, len(mc.globalMetrics.QueriesByOperation))
	for op, count := range mc.globalMetrics.QueriesByOperation {
		counts = append(counts, opCount{op, count})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].op < counts[j].op
	})

	result := make([]string, 0, limit)
	for i := 0; i < len(counts) && i < limit; i++ {
		result = append(result, counts[i].op)
	}
	return result
}

// ExportMetrics exports metrics in a format suitable for external monitoring
func (mc *MetricsCollector) ExportMetrics() map[string]interface{} {
	return map[string]interface{}{
		"global":     mc.GetGlobalMetrics(),
		"operations": mc.GetAllMetrics(),
		"summary":    mc.GetMetricsSummary(),
	}
}
