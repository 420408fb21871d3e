package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v3/mem"

	"insight-gateway/internal/logging"
	"insight-gateway/internal/model"
)

// Reloader refreshes the engine from its source
type Reloader interface {
	Reload(ctx context.Context) (*model.RefreshResult, error)
}

// CacheSweeper drops stale cache entries
type CacheSweeper interface {
	SweepCache() int
}

// MemoryProbe returns the system memory usage in percent
type MemoryProbe func() (float64, error)

// SystemMemoryProbe reads virtual memory usage from the OS
func SystemMemoryProbe() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

// SchedulerOptions configures the periodic jobs. An empty schedule disables
// the job; MemoryPressurePercent 0 sweeps unconditionally.
type SchedulerOptions struct {
	RefreshSchedule       string
	SweepSchedule         string
	MemoryPressurePercent float64
	RefreshTimeout        time.Duration
	Probe                 MemoryProbe
}

// Scheduler runs periodic reloads and memory-pressure cache sweeps
type Scheduler struct {
	cron     *cron.Cron
	reloader Reloader
	sweeper  CacheSweeper
	opts     SchedulerOptions
	logger   *slog.Logger
}

// NewScheduler registers the jobs. Invalid cron expressions are returned as errors.
func NewScheduler(reloader Reloader, sweeper CacheSweeper, opts SchedulerOptions, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.Probe == nil {
		opts.Probe = SystemMemoryProbe
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = 5 * time.Minute
	}

	s := &Scheduler{
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		reloader: reloader,
		sweeper:  sweeper,
		opts:     opts,
		logger:   logger.With("component", "scheduler"),
	}

	if opts.RefreshSchedule != "" && reloader != nil {
		if _, err := s.cron.AddFunc(opts.RefreshSchedule, s.runRefresh); err != nil {
			return nil, fmt.Errorf("invalid refresh schedule %q: %w", opts.RefreshSchedule, err)
		}
	}
	if opts.SweepSchedule != "" && sweeper != nil {
		if _, err := s.cron.AddFunc(opts.SweepSchedule, func() { s.runSweep() }); err != nil {
			return nil, fmt.Errorf("invalid sweep schedule %q: %w", opts.SweepSchedule, err)
		}
	}
	return s, nil
}

// Start runs the scheduler in the background
func (s *Scheduler) Start() {
	s.logger.Info("scheduler started",
		"refresh_schedule", s.opts.RefreshSchedule,
		"sweep_schedule", s.opts.SweepSchedule,
		"jobs", len(s.cron.Entries()))
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RefreshTimeout)
	defer cancel()

	if _, err := s.reloader.Reload(ctx); err != nil {
		s.logger.Warn("scheduled refresh failed", "error", err)
	}
}

// runSweep sweeps the cache when memory usage is at or above the threshold.
// It returns the number of entries removed.
func (s *Scheduler) runSweep() int {
	if s.opts.MemoryPressurePercent > 0 {
		used, err := s.opts.Probe()
		if err != nil {
			s.logger.Warn("memory probe failed", "error", err)
			return 0
		}
		if used < s.opts.MemoryPressurePercent {
			return 0
		}
		s.logger.Info("memory pressure, sweeping cache", "used_percent", used, "threshold", s.opts.MemoryPressurePercent)
	}
	return s.sweeper.SweepCache()
}
