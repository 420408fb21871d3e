package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"insight-gateway/internal/cache"
	"insight-gateway/internal/config"
	"insight-gateway/internal/database/index"
	"insight-gateway/internal/database/metadata"
	"insight-gateway/internal/logging"
	"insight-gateway/internal/model"
	"insight-gateway/internal/repository"
	"insight-gateway/internal/utils"
)

// RetrievalOptions bounds the work a single query may do
type RetrievalOptions struct {
	CacheCapacity      int
	MaxScanRows        int
	MaxFuzzyCandidates int
	FuzzyMaxDistance   float64
	DefaultPageSize    int
	Timeout            time.Duration
}

// DefaultRetrievalOptions returns the defaults used when no config is loaded
func DefaultRetrievalOptions() RetrievalOptions {
	return RetrievalOptions{
		CacheCapacity:      cache.DefaultCapacity,
		MaxScanRows:        1_000_000,
		MaxFuzzyCandidates: 50_000,
		FuzzyMaxDistance:   0.25,
		DefaultPageSize:    100,
		Timeout:            30 * time.Second,
	}
}

// OptionsFromConfig maps the cache and query sections of the config
func OptionsFromConfig(cfg *config.Config) RetrievalOptions {
	return RetrievalOptions{
		CacheCapacity:      cfg.Cache.Capacity,
		MaxScanRows:        cfg.Query.MaxScanRows,
		MaxFuzzyCandidates: cfg.Query.MaxFuzzyCandidates,
		FuzzyMaxDistance:   cfg.Query.FuzzyMaxDistance,
		DefaultPageSize:    cfg.Query.DefaultPageSize,
		Timeout:            cfg.Query.Timeout,
	}
}

// RetrievalService is the query surface over the published snapshot. It owns
// the snapshot repository and the query cache; Refresh is its only writer.
type RetrievalService struct {
	opts      RetrievalOptions
	catalog   *metadata.Catalog
	snapshots repository.SnapshotRepository
	cache     *cache.QueryCache
	logger    *slog.Logger
	metrics   *MetricsCollector

	writeMu     sync.Mutex
	lastRefresh atomic.Pointer[model.RefreshResult]
}

// NewRetrievalService creates a service serving the empty generation 0
func NewRetrievalService(opts RetrievalOptions, logger *slog.Logger, metrics *MetricsCollector) (*RetrievalService, error) {
	defaults := DefaultRetrievalOptions()
	if opts.MaxScanRows <= 0 {
		opts.MaxScanRows = defaults.MaxScanRows
	}
	if opts.MaxFuzzyCandidates <= 0 {
		opts.MaxFuzzyCandidates = defaults.MaxFuzzyCandidates
	}
	if opts.FuzzyMaxDistance <= 0 {
		opts.FuzzyMaxDistance = defaults.FuzzyMaxDistance
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = defaults.DefaultPageSize
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if metrics == nil {
		metrics = NewMetricsCollector(nil)
	}

	catalog := metadata.DefaultCatalog()
	tables := make(map[model.TableKind]*model.Table, len(model.AllTableKinds))
	for _, kind := range model.AllTableKinds {
		schema, _ := catalog.Table(kind)
		tables[kind] = model.EmptyTable(kind, schema.ColumnNames())
	}
	set, err := index.BuildAll(context.Background(), tables, catalog, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to index empty dataset: %w", err)
	}
	snapshots, err := repository.NewMemorySnapshotRepository(&repository.Snapshot{
		Generation:  0,
		Tables:      tables,
		Indexes:     set,
		PublishedAt: time.Now(),
	})
	if err != nil {
		return nil, err
	}

	return &RetrievalService{
		opts:      opts,
		catalog:   catalog,
		snapshots: snapshots,
		cache:     cache.New(opts.CacheCapacity),
		logger:    logger,
		metrics:   metrics,
	}, nil
}

// Generation returns the published generation
func (s *RetrievalService) Generation() uint64 {
	return s.snapshots.Generation()
}

// Snapshot returns the published snapshot. It must be treated as read-only.
func (s *RetrievalService) Snapshot() *repository.Snapshot {
	return s.snapshots.Current()
}

// Catalog returns the table schemas
func (s *RetrievalService) Catalog() *metadata.Catalog {
	return s.catalog
}

// Options returns the effective query limits
func (s *RetrievalService) Options() RetrievalOptions {
	return s.opts
}

// SweepCache eagerly drops cache entries of old generations
func (s *RetrievalService) SweepCache() int {
	removed := s.cache.Sweep()
	s.metrics.RecordSweep(removed)
	if removed > 0 {
		s.logger.Debug("swept stale cache entries", "removed", removed)
	}
	return removed
}

// CacheStats returns the query cache counters
func (s *RetrievalService) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// queryFunc computes a result against one snapshot
type queryFunc[T model.Result] func(ctx context.Context, snap *repository.Snapshot) (T, error)

// run executes fn against the snapshot current at entry, memoized under the
// canonical (op, args) key for that snapshot's generation.
func run[T model.Result](ctx context.Context, s *RetrievalService, op string, args any, fn queryFunc[T]) (T, error) {
	var zero T
	start := time.Now()

	if _, ok := ctx.Deadline(); !ok && s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	snap := s.snapshots.Current()
	key, err := cache.NewKey(op, args)
	if err != nil {
		return zero, utils.NewInvalidQueryError(err.Error())
	}

	value, hit, err := s.cache.GetOrCompute(ctx, key, snap.Generation, func(ctx context.Context) (any, error) {
		return fn(ctx, snap)
	})
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			err = utils.NewQueryTimeoutError(err)
		case errors.Is(err, cache.ErrComputePanic):
			var pe *cache.PanicError
			if errors.As(err, &pe) {
				s.logger.Error("query computation panicked", "operation", op, "panic", pe.Value, "stack", string(pe.Stack))
			}
			err = utils.NewErrorBuilder(utils.ErrCodeInternalError).WithCause(err).Build()
		}
		s.recordQuery(op, nil, false, start, err)
		return zero, err
	}

	result, ok := value.(T)
	if !ok {
		err := fmt.Errorf("cached value for %s has type %T", op, value)
		s.recordQuery(op, nil, false, start, err)
		return zero, err
	}
	if hit {
		result = markCached(result).(T)
	}
	s.recordQuery(op, result, hit, start, nil)
	return result, nil
}

// markCached returns a copy of r flagged as served from cache. The cached
// value itself is shared between callers and is never mutated.
func markCached(r model.Result) model.Result {
	switch v := r.(type) {
	case *model.LookupResult:
		cp := *v
		cp.Cached = true
		return &cp
	case *model.PageResult:
		cp := *v
		cp.Cached = true
		return &cp
	case *model.RowsResult:
		cp := *v
		cp.Cached = true
		return &cp
	case *model.CustomerOrdersResult:
		cp := *v
		cp.Cached = true
		return &cp
	case *model.AggregateResult:
		cp := *v
		cp.Cached = true
		return &cp
	}
	return r
}

func (s *RetrievalService) recordQuery(op string, result model.Result, hit bool, start time.Time, err error) {
	qm := &QueryMetrics{
		Operation:       op,
		Success:         err == nil,
		Cached:          hit,
		ExecutionTimeNs: time.Since(start).Nanoseconds(),
		Timestamp:       time.Now(),
	}
	if err != nil {
		qm.Error = err.Error()
		s.logger.Debug("query failed", "operation", op, "error", err)
	}
	switch v := result.(type) {
	case *model.LookupResult:
		qm.RowsReturned = int64(len(v.Rows))
		qm.Fuzzy = v.Fuzzy
	case *model.PageResult:
		qm.RowsReturned = int64(len(v.Rows))
	case *model.RowsResult:
		qm.RowsReturned = int64(len(v.Rows))
	case *model.CustomerOrdersResult:
		qm.RowsReturned = int64(len(v.Customers))
		qm.Fuzzy = v.Fuzzy
	case *model.AggregateResult:
		qm.RowsReturned = int64(v.MatchedRows)
		qm.FullScan = v.Cost.FullScan
	}
	s.metrics.RecordQuery(qm)
}

func meta(op string, snap *repository.Snapshot) model.ResultMeta {
	return model.ResultMeta{Operation: op, Generation: snap.Generation}
}

func requireIndex(snap *repository.Snapshot, name string) (*index.Index, error) {
	ix, ok := snap.Indexes.Get(name)
	if !ok {
		return nil, fmt.Errorf("index %s missing from generation %d", name, snap.Generation)
	}
	return ix, nil
}

func rowsAt(table *model.Table, ids []int) []model.Row {
	rows := make([]model.Row, len(ids))
	for i, id := range ids {
		rows[i] = table.Rows[id]
	}
	return rows
}
