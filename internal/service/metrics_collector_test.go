package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatheredNames(t *testing.T, reg *prometheus.Registry) map[string]int {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]int, len(families))
	for _, f := range families {
		names[f.GetName()] = len(f.GetMetric())
	}
	return names
}

func TestMetricsCollectorRecordsQueries(t *testing.T) {
	mc := NewMetricsCollector(nil)
	now := time.Now()

	mc.RecordQuery(&QueryMetrics{Operation: "lookup_customer", Success: true, ExecutionTimeNs: 200, RowsReturned: 2, Timestamp: now})
	mc.RecordQuery(&QueryMetrics{Operation: "lookup_customer", Success: true, Cached: true, Fuzzy: true, ExecutionTimeNs: 100, Timestamp: now})
	mc.RecordQuery(&QueryMetrics{Operation: "aggregate", Success: false, FullScan: true, ExecutionTimeNs: 600, Error: "too expensive", Timestamp: now})

	lookup, ok := mc.GetOperationMetrics("lookup_customer")
	require.True(t, ok)
	assert.Equal(t, int64(2), lookup.TotalQueries)
	assert.Equal(t, int64(1), lookup.CacheHits)
	assert.Equal(t, int64(1), lookup.FuzzyFallbacks)
	assert.Equal(t, int64(100), lookup.MinExecutionTimeNs)
	assert.Equal(t, int64(200), lookup.MaxExecutionTimeNs)
	assert.Equal(t, int64(150), lookup.AvgExecutionTimeNs)
	assert.Equal(t, int64(2), lookup.TotalRowsReturned)

	agg, ok := mc.GetOperationMetrics("aggregate")
	require.True(t, ok)
	assert.Equal(t, int64(1), agg.FailedQueries)
	assert.Equal(t, int64(1), agg.FullScans)
	assert.Equal(t, "too expensive", agg.LastError)

	_, ok = mc.GetOperationMetrics("search_products")
	assert.False(t, ok)

	global := mc.GetGlobalMetrics()
	assert.Equal(t, int64(3), global.TotalQueries)
	assert.Equal(t, int64(2), global.SuccessfulQueries)
	assert.Equal(t, []string{"lookup_customer", "aggregate"}, mc.GetTopOperations(5))
	assert.Equal(t, []string{"lookup_customer"}, mc.GetTopOperations(1))

	summary := mc.GetMetricsSummary()
	assert.InDelta(t, 2.0/3.0, summary["success_rate"], 1e-9)
	assert.Contains(t, mc.ExportMetrics(), "operations")
}

func TestMetricsCollectorCopiesAreIsolated(t *testing.T) {
	mc := NewMetricsCollector(nil)
	mc.RecordQuery(&QueryMetrics{Operation: "list_customers", Success: true, Timestamp: time.Now()})

	global := mc.GetGlobalMetrics()
	global.QueriesByOperation["list_customers"] = 99
	assert.Equal(t, int64(1), mc.GetGlobalMetrics().QueriesByOperation["list_customers"])

	all := mc.GetAllMetrics()
	all["list_customers"].TotalQueries = 99
	again, _ := mc.GetOperationMetrics("list_customers")
	assert.Equal(t, int64(1), again.TotalQueries)
}

func TestMetricsCollectorNilIsSafe(t *testing.T) {
	var mc *MetricsCollector
	assert.NotPanics(t, func() {
		mc.RecordQuery(&QueryMetrics{Operation: "aggregate"})
		mc.RecordRefresh(true, 1)
		mc.RecordClaim(false)
		mc.RecordSweep(3)
	})
}

func TestMetricsCollectorExportsToPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	mc := NewMetricsCollector(reg)

	mc.RecordQuery(&QueryMetrics{Operation: "aggregate", Success: true, ExecutionTimeNs: int64(time.Millisecond), Timestamp: time.Now()})
	mc.RecordRefresh(true, 4)
	mc.RecordRefresh(false, 4)
	mc.RecordClaim(true)
	mc.RecordSweep(2)

	names := gatheredNames(t, reg)
	assert.Equal(t, 1, names["insight_queries_total"])
	assert.Equal(t, 1, names["insight_query_duration_seconds"])
	assert.Equal(t, 1, names["insight_cache_lookups_total"])
	assert.Equal(t, 2, names["insight_refreshes_total"])
	assert.Equal(t, 1, names["insight_claims_total"])
	assert.Equal(t, 1, names["insight_cache_swept_entries_total"])
	assert.Equal(t, 1, names["insight_data_generation"])

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "insight_data_generation" {
			assert.Equal(t, 4.0, f.GetMetric()[0].GetGauge().GetValue())
		}
	}

	global := mc.GetGlobalMetrics()
	assert.Equal(t, int64(1), global.RefreshesAccepted)
	assert.Equal(t, int64(1), global.RefreshesRejected)
	assert.Equal(t, int64(1), global.ClaimsVerified)
}

func TestRetrievalServiceFeedsCollector(t *testing.T) {
	mc := NewMetricsCollector(nil)
	svc, err := NewRetrievalService(DefaultRetrievalOptions(), nil, mc)
	require.NoError(t, err)
	_, err = svc.Refresh(context.Background(), sampleTables())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = svc.LookupCustomer(ctx, "Melissa Wang")
	require.NoError(t, err)
	_, err = svc.LookupCustomer(ctx, "Melissa Wang")
	require.NoError(t, err)

	lookup, ok := mc.GetOperationMetrics("lookup_customer")
	require.True(t, ok)
	assert.Equal(t, int64(2), lookup.TotalQueries)
	assert.Equal(t, int64(1), lookup.CacheHits)
	assert.Equal(t, int64(1), mc.GetGlobalMetrics().RefreshesAccepted)
}
