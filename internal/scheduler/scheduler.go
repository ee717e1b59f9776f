package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-collector/internal/lifecycle"
	"github.com/kjstillabower/weather-collector/internal/observability"
)

// Runner is one collection run.
type Runner interface {
	Start(ctx context.Context) error
}

// Config controls the periodic job.
type Config struct {
	Interval time.Duration
	// RunTimeout bounds a single run; zero means the interval.
	RunTimeout time.Duration
	// PushURL, when set, receives the metrics registry after every run.
	PushURL string
	Job     string
}

// Scheduler runs the collector periodically. The first run starts immediately and
// runs never overlap.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	cfg       Config
	logger    *zap.Logger
	job       *gocron.Job
}

func New(runner Runner, cfg Config, logger *zap.Logger) (*Scheduler, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("scheduler: interval must be positive, got %v", cfg.Interval)
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = cfg.Interval
	}
	if cfg.Job == "" {
		cfg.Job = "weather-collector"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{scheduler: s, runner: runner, cfg: cfg, logger: logger}, nil
}

// Start schedules the job and starts the underlying scheduler. Runs derive their
// context from ctx, so cancelling it aborts a run in progress.
func (s *Scheduler) Start(ctx context.Context) error {
	job, err := s.scheduler.Every(s.cfg.Interval).Do(func() { s.runOnce(ctx) })
	if err != nil {
		return fmt.Errorf("schedule collection job: %w", err)
	}
	s.job = job
	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", zap.Duration("interval", s.cfg.Interval))
	return nil
}

// Stop stops scheduling and waits for a run in progress to finish.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	s.logger.Info("scheduler stopped")
}

// NextRun returns when the job fires next, or the zero time before Start.
func (s *Scheduler) NextRun() time.Time {
	if s.job == nil {
		return time.Time{}
	}
	return s.job.NextRun()
}

// RunCount returns how many times the job has fired.
func (s *Scheduler) RunCount() int {
	if s.job == nil {
		return 0
	}
	return s.job.RunCount()
}

func (s *Scheduler) runOnce(parent context.Context) {
	if lifecycle.IsShuttingDown() || parent.Err() != nil {
		s.logger.Info("scheduled run skipped: shutting down")
		return
	}
	done := lifecycle.BeginRun()
	defer done()

	ctx, cancel := context.WithTimeout(parent, s.cfg.RunTimeout)
	defer cancel()

	if err := s.runner.Start(ctx); err != nil {
		level := zap.ErrorLevel
		if errors.Is(err, context.Canceled) {
			level = zap.InfoLevel
		}
		s.logger.Log(level, "scheduled run failed", zap.Error(err))
	}
	if err := observability.PushMetrics(parent, s.cfg.PushURL, s.cfg.Job); err != nil {
		s.logger.Warn("metrics push failed", zap.Error(err))
	}
}
