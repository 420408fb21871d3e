package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"insight-gateway/internal/config"
	"insight-gateway/internal/database"
	"insight-gateway/internal/logging"
	"insight-gateway/internal/service"
)

// app is the service graph shared by serve and mcp
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	registry  *prometheus.Registry
	engine    *service.RetrievalService
	verifier  *service.FactVerifier
	reports   *service.ReportService
	refresher *service.RefreshService
	health    *database.HealthChecker

	closeLogger func()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, closeLogger := logging.SetupLogger(cfg.Logging)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := service.NewMetricsCollector(registry)

	engine, err := service.NewRetrievalService(service.OptionsFromConfig(cfg), logger, collector)
	if err != nil {
		closeLogger()
		return nil, fmt.Errorf("failed to create retrieval service: %w", err)
	}

	source, err := database.NewSourceRegistry().Create(ctx, cfg.Source)
	if err != nil {
		closeLogger()
		return nil, fmt.Errorf("failed to create %s source: %w", cfg.Source.Type, err)
	}

	return &app{
		cfg:         cfg,
		logger:      logger,
		registry:    registry,
		engine:      engine,
		verifier:    service.NewFactVerifier(engine, cfg.Verify.Tolerance, logger, collector),
		reports:     service.NewReportService(engine, logger),
		refresher:   service.NewRefreshService(engine, source, logger),
		health:      database.NewHealthChecker(source, 0),
		closeLogger: closeLogger,
	}, nil
}

// loadInitial publishes the first generation when refresh.on_startup is set.
// A failed load leaves the service at generation 0.
func (a *app) loadInitial(ctx context.Context) {
	if !a.cfg.Refresh.OnStartup {
		return
	}
	if _, err := a.refresher.Reload(ctx); err != nil {
		a.logger.Error("initial load failed", "source", a.cfg.Source.Describe(), "error", err)
	}
}

func (a *app) Close() {
	a.closeLogger()
}
