package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"RecipeCollector/internal/domain"
	"RecipeCollector/internal/ports"
)

// ErrRunInProgress is returned when a collection is requested while another one is running.
var ErrRunInProgress = errors.New("collection run already in progress")

// Runner is anything that performs one collection run.
type Runner interface {
	Run(ctx context.Context) (domain.RunReport, error)
}

// ExclusiveRunner serialises pipeline runs inside one process. Overlapping
// requests fail fast instead of queueing.
type ExclusiveRunner struct {
	runner Runner
	mu     sync.Mutex
}

// NewExclusiveRunner wraps a runner with single-run-at-a-time discipline.
func NewExclusiveRunner(runner Runner) *ExclusiveRunner {
	return &ExclusiveRunner{runner: runner}
}

// Run executes the wrapped runner or returns ErrRunInProgress.
func (e *ExclusiveRunner) Run(ctx context.Context) (domain.RunReport, error) {
	if !e.mu.TryLock() {
		return domain.RunReport{}, ErrRunInProgress
	}
	defer e.mu.Unlock()
	return e.runner.Run(ctx)
}

// Scheduler wires the cron driver with the collection pipeline.
type Scheduler struct {
	driver ports.Scheduler
	runner Runner
	logger *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring collections.
func NewScheduler(driver ports.Scheduler, runner Runner, logger *slog.Logger) *Scheduler {
	return &Scheduler{driver: driver, runner: runner, logger: logger}
}

// Start registers the pipeline with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.runner == nil {
		return nil
	}

	job := func(trigger time.Time) {
		report, err := s.runner.Run(ctx)
		switch {
		case errors.Is(err, ErrRunInProgress):
			s.log().Info("scheduled collection skipped, run in progress", "trigger", trigger)
		case err != nil:
			s.log().Error("scheduled collection failed", "trigger", trigger, "error", err)
		default:
			s.log().Info("scheduled collection done",
				"trigger", trigger,
				"processed", report.State.ProcessedCount,
				"failed", report.State.FailedCount)
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

func (s *Scheduler) log() *slog.Logger {
	if s.logger == nil {
		return slog.Default()
	}
	return s.logger
}
