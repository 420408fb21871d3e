package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"insight-gateway/internal/cache"
	"insight-gateway/internal/database/index"
	"insight-gateway/internal/database/metadata"
	"insight-gateway/internal/model"
	"insight-gateway/internal/repository"
	"insight-gateway/internal/utils"
)

// violationCodes maps violation kinds to the error codes carried by a rejection
var violationCodes = map[model.ViolationKind]string{
	model.ViolationMissingHeader:     utils.ErrCodeMissingHeader,
	model.ViolationMissingColumn:     utils.ErrCodeMissingColumn,
	model.ViolationTypeMismatch:      utils.ErrCodeTypeMismatch,
	model.ViolationNullViolation:     utils.ErrCodeNullViolation,
	model.ViolationDuplicateKey:      utils.ErrCodeDuplicateKey,
	model.ViolationDanglingReference: utils.ErrCodeDanglingReference,
}

// Refresh validates the supplied raw tables, indexes them at the next
// generation, checks cross references and publishes the result atomically.
// Table kinds not supplied carry over from the current generation.
//
// A rejected refresh returns the result, with every report and the
// unchanged generation, together with a VALIDATION_ERROR whose cause carries
// the code of the first violation.
func (s *RetrievalService) Refresh(ctx context.Context, raw map[model.TableKind]*model.RawTable) (*model.RefreshResult, error) {
	if len(raw) == 0 {
		return nil, utils.NewInvalidQueryError("refresh needs at least one table")
	}
	for kind := range raw {
		if !kind.IsValid() {
			return nil, utils.NewInvalidQueryError(fmt.Sprintf("unknown table %q", kind))
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	start := time.Now()
	current := s.snapshots.Current()
	result := &model.RefreshResult{
		RefreshID:          utils.NewRefreshID(),
		Generation:         current.Generation,
		PreviousGeneration: current.Generation,
		Reports:            []model.ValidationReport{},
	}
	logger := s.logger.With("refresh_id", result.RefreshID, "generation", current.Generation)

	tables := make(map[model.TableKind]*model.Table, len(model.AllTableKinds))
	for kind, t := range current.Tables {
		tables[kind] = t
	}

	passed := true
	for _, kind := range model.AllTableKinds {
		rt, ok := raw[kind]
		if !ok {
			continue
		}
		schema, _ := s.catalog.Table(kind)
		table, report := metadata.Coerce(rt, schema)
		result.Reports = append(result.Reports, report)
		if !report.Passed {
			passed = false
			continue
		}
		tables[kind] = table
	}
	if !passed {
		return s.reject(result, start, logger)
	}

	next := current.Generation + 1
	set, err := index.BuildAll(ctx, tables, s.catalog, next)
	if err != nil {
		logger.Warn("index build aborted", "error", err)
		return nil, err
	}

	refs := index.CheckReferences(tables, set, s.catalog)
	result.Reports = append(result.Reports, refs)
	if !refs.Passed {
		return s.reject(result, start, logger)
	}

	snap := &repository.Snapshot{
		Generation:  next,
		Tables:      tables,
		Indexes:     set,
		PublishedAt: time.Now(),
		RefreshID:   result.RefreshID,
	}
	if err := s.snapshots.Publish(current.Generation, snap); err != nil {
		actual := s.snapshots.Generation()
		logger.Error("snapshot publish conflict", "expected", current.Generation, "actual", actual, "error", err)
		return nil, utils.NewErrorBuilder(utils.ErrCodeStaleGeneration).
			WithDetails(fmt.Sprintf("expected generation %d, found %d", current.Generation, actual)).
			WithCause(err).
			Build()
	}
	s.cache.Advance(next)

	result.Accepted = true
	result.Generation = next
	result.RowCounts = snap.RowCounts()
	s.finish(result, start)

	logger.Info("published generation",
		"next_generation", next,
		"rows", result.RowCounts,
		"indexes", set.Len(),
		"duration_ms", result.DurationMs)
	return result, nil
}

func (s *RetrievalService) reject(result *model.RefreshResult, start time.Time, logger *slog.Logger) (*model.RefreshResult, error) {
	s.finish(result, start)

	violations := result.Violations()
	first := violations[0]
	logger.Warn("refresh rejected",
		"violations", len(violations),
		"first", first.String())

	code, ok := violationCodes[first.Kind]
	if !ok {
		code = utils.ErrCodeValidationFailed
	}
	cause := utils.NewErrorBuilder(code).WithDetails(first.String()).Build()
	return result, utils.NewErrorBuilder(utils.ErrCodeValidationFailed).
		WithMessage("refresh rejected").
		WithDetails(fmt.Sprintf("%d violations, first: %s", len(violations), first.String())).
		WithCause(cause).
		Build()
}

func (s *RetrievalService) finish(result *model.RefreshResult, start time.Time) {
	result.DurationMs = time.Since(start).Milliseconds()
	result.CompletedAt = time.Now()
	s.lastRefresh.Store(result)
	s.metrics.RecordRefresh(result.Accepted, s.snapshots.Generation())
}

// LastRefresh returns the outcome of the most recent refresh, or nil
func (s *RetrievalService) LastRefresh() *model.RefreshResult {
	return s.lastRefresh.Load()
}

// CheckIntegrity runs the cross-reference check against the published generation
func (s *RetrievalService) CheckIntegrity(ctx context.Context) (model.ValidationReport, error) {
	if err := ctx.Err(); err != nil {
		return model.ValidationReport{}, err
	}
	snap := s.snapshots.Current()
	return index.CheckReferences(snap.Tables, snap.Indexes, s.catalog), nil
}

// TableStats describes one table of the published generation
type TableStats struct {
	Rows    int      `json:"rows"`
	Columns []string `json:"columns"`
	Source  string   `json:"source,omitempty"`
}

// IndexStats describes one index of the published generation
type IndexStats struct {
	Table  model.TableKind `json:"table"`
	Column string          `json:"column"`
	Type   string          `json:"type"`
	Keys   int             `json:"keys"`
}

// EngineStats is the data status report
type EngineStats struct {
	Generation  uint64                         `json:"generation"`
	PublishedAt time.Time                      `json:"publishedAt"`
	RefreshID   string                         `json:"refreshId,omitempty"`
	Tables      map[model.TableKind]TableStats `json:"tables"`
	Indexes     map[string]IndexStats          `json:"indexes"`
	LastRefresh *model.RefreshResult           `json:"lastRefresh,omitempty"`
	Cache       cache.Stats                    `json:"cache"`
	Operations  map[string]*OperationMetrics   `json:"operations"`
	Summary     map[string]interface{}         `json:"summary"`
}

// Stats reports table sizes, indexes, cache counters and query metrics
func (s *RetrievalService) Stats() *EngineStats {
	snap := s.snapshots.Current()

	stats := &EngineStats{
		Generation:  snap.Generation,
		PublishedAt: snap.PublishedAt,
		RefreshID:   snap.RefreshID,
		Tables:      make(map[model.TableKind]TableStats, len(snap.Tables)),
		Indexes:     make(map[string]IndexStats, snap.Indexes.Len()),
		LastRefresh: s.LastRefresh(),
		Cache:       s.cache.Stats(),
		Operations:  s.metrics.GetAllMetrics(),
		Summary:     s.metrics.GetMetricsSummary(),
	}
	for kind, t := range snap.Tables {
		stats.Tables[kind] = TableStats{Rows: t.Len(), Columns: t.Columns, Source: t.Source}
	}
	for _, name := range snap.Indexes.Names() {
		ix, _ := snap.Indexes.Get(name)
		stats.Indexes[name] = IndexStats{Table: ix.Table, Column: ix.Column, Type: string(ix.Type), Keys: ix.Len()}
	}
	return stats
}
