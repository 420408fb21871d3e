package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"insight-gateway/internal/controller"
	"insight-gateway/internal/middleware"
	"insight-gateway/internal/security"
	"insight-gateway/internal/service"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func runServe(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	// Set Gin mode
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	a.loadInitial(ctx)

	schedule := service.SchedulerOptions{
		SweepSchedule:         cfg.Cache.SweepSchedule,
		MemoryPressurePercent: cfg.Cache.MemoryPressurePercent,
	}
	if cfg.Refresh.Enabled {
		schedule.RefreshSchedule = cfg.Refresh.Schedule
	}
	scheduler, err := service.NewScheduler(a.refresher, a.engine, schedule, a.logger)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	deps := controller.RouterDeps{
		Logger:      a.logger,
		Engine:      a.engine,
		Verifier:    a.verifier,
		Reports:     a.reports,
		Refresher:   a.refresher,
		Health:      a.health,
		Metrics:     middleware.NewPrometheusMetrics(a.registry),
		Gatherer:    a.registry,
		MaxPageSize: cfg.Query.MaxPageSize,
		Version:     version,
	}

	// Add rate limiting if enabled
	if cfg.Security.EnableRateLimit {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RPM:             cfg.Security.RateLimitPerMinute,
			Burst:           cfg.Security.RateLimitBurst,
			CleanupInterval: 5 * time.Minute,
		})
		defer rateLimiter.Stop()
		deps.RateLimiter = rateLimiter
	}

	if cfg.Security.EnableAuth {
		jwtManager := security.NewJWTManager(cfg.Security.JWTSecret, cfg.Security.JWTExpiration)
		deps.Auth = security.NewAuthMiddleware(jwtManager)
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           controller.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting server",
			"addr", srv.Addr,
			"source", cfg.Source.Describe(),
			"auth", cfg.Security.EnableAuth,
			"generation", a.engine.Generation())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
