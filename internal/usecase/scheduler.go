package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"HustleCollector/internal/domain"
	"HustleCollector/internal/ports"
)

// Scheduler wires the cron driver with the collector.
type Scheduler struct {
	driver    ports.Scheduler
	collector *Collector
	logger    *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring collection runs.
func NewScheduler(driver ports.Scheduler, collector *Collector, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, collector: collector, logger: logger}
}

// Start registers a collection run with the provided scheduler. A tick that
// fires while a run is still active is skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.collector == nil {
		return nil
	}

	job := func(trigger time.Time) {
		report, err := s.collector.Run(ctx, RunOptions{})
		switch {
		case errors.Is(err, domain.ErrRunInProgress):
			s.logger.Info("scheduled run skipped, collector busy", "trigger", trigger)
		case err != nil:
			s.logger.Error("scheduled run failed", "trigger", trigger, "run_id", report.RunID, "error", err)
		default:
			s.logger.Info("scheduled run finished", "trigger", trigger, "run_id", report.RunID, "admitted", report.Admitted)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
