package service

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"insight-gateway/internal/database/drivers"
	"insight-gateway/internal/logging"
	"insight-gateway/internal/model"
	"insight-gateway/internal/utils"
)

// RefreshService reloads the engine from its ingestion source
type RefreshService struct {
	engine  *RetrievalService
	source  drivers.Source
	logger  *slog.Logger
	running atomic.Bool
}

// NewRefreshService creates a refresh service for one source
func NewRefreshService(engine *RetrievalService, source drivers.Source, logger *slog.Logger) *RefreshService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &RefreshService{
		engine: engine,
		source: source,
		logger: logger.With("source", source.GetSourceTypeName()),
	}
}

// Source returns the ingestion source
func (r *RefreshService) Source() drivers.Source {
	return r.source
}

// Reload fetches every table from the source and refreshes the engine.
// A reload already running makes the call fail with REFRESH_IN_PROGRESS
// instead of queueing.
func (r *RefreshService) Reload(ctx context.Context) (*model.RefreshResult, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, utils.NewErrorBuilder(utils.ErrCodeRefreshInProgress).Build()
	}
	defer r.running.Store(false)

	raw, err := r.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	result, err := r.engine.Refresh(ctx, raw)
	if err != nil {
		r.logger.Warn("reload failed", "error", err)
		return result, err
	}
	r.logger.Info("reload complete",
		"generation", result.Generation,
		"refresh_id", result.RefreshID,
		"rows", result.RowCounts)
	return result, nil
}

// Fetch reads the raw tables without refreshing the engine
func (r *RefreshService) Fetch(ctx context.Context) (map[model.TableKind]*model.RawTable, error) {
	raw, err := r.source.FetchTables(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		r.logger.Error("fetch from source failed", "error", err)
		return nil, utils.NewSourceUnavailableError(r.source.GetSourceTypeName(), err)
	}
	if len(raw) == 0 {
		return nil, utils.NewSourceUnavailableError(r.source.GetSourceTypeName(), errors.New("no table files found"))
	}
	r.logger.Debug("fetched tables", "tables", len(raw))
	return raw, nil
}

// Running reports whether a reload is in progress
func (r *RefreshService) Running() bool {
	return r.running.Load()
}
