package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-collector/internal/config"
	httphandler "github.com/kjstillabower/weather-collector/internal/http"
	"github.com/kjstillabower/weather-collector/internal/lifecycle"
	"github.com/kjstillabower/weather-collector/internal/observability"
	"github.com/kjstillabower/weather-collector/internal/scheduler"
)

const (
	serviceName = "weather-collector"
	version     = "0.1.0"
)

func main() {
	logger, err := observability.NewLogger(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	tp, shutdownTracing, err := observability.NewTracerProvider(cfg.ZipkinURL, serviceName, version)
	if err != nil {
		logger.Fatal("tracing", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, cfg, tp, time.Now(), logger)
	if err != nil {
		logger.Fatal("pipeline", zap.Error(err))
	}

	if !cfg.Scheduled() {
		code := runOnce(ctx, p, cfg, logger, shutdownTracing)
		p.close(logger)
		if code != 0 {
			os.Exit(code)
		}
		return
	}

	runScheduled(ctx, p, cfg, logger, shutdownTracing)
	p.close(logger)
	logger.Info("shutdown complete")
}

func runOnce(ctx context.Context, p *pipeline, cfg *config.Config, logger *zap.Logger, shutdownTracing observability.ShutdownFunc) int {
	runErr := p.orchestrator.Start(ctx)
	if err := observability.FlushTelemetry(context.Background(), logger, shutdownTracing, cfg.PushgatewayURL, serviceName); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	if runErr != nil {
		logger.Error("collection run failed", zap.Error(runErr))
		return 1
	}
	return 0
}

func runScheduled(ctx context.Context, p *pipeline, cfg *config.Config, logger *zap.Logger, shutdownTracing observability.ShutdownFunc) {
	if err := checkAPIKey(ctx, p, logger); err != nil {
		logger.Fatal("weather API key rejected", zap.Error(err))
	}

	healthConfig := &httphandler.HealthConfig{
		StaleAfter: 2 * cfg.ScheduleInterval,
		Version:    version,
	}
	if p.memcached != nil {
		healthConfig.CachePing = p.memcached.Ping
	}
	if p.db != nil {
		healthConfig.DatabasePing = p.db.Ping
	}
	handler := httphandler.NewHandler(p.orchestrator, healthConfig, logger)

	srv := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     httphandler.NewRouter(handler, logger, cfg.ScheduleInterval),
		ReadTimeout: 10 * time.Second,
		// POST /runs is synchronous and bounded by the schedule interval.
		WriteTimeout: cfg.ScheduleInterval + 10*time.Second,
	}
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	sched, err := scheduler.New(p.orchestrator, scheduler.Config{
		Interval: cfg.ScheduleInterval,
		PushURL:  cfg.PushgatewayURL,
		Job:      serviceName,
	}, logger)
	if err != nil {
		logger.Fatal("scheduler", zap.Error(err))
	}
	if err := sched.Start(ctx); err != nil {
		logger.Fatal("scheduler", zap.Error(err))
	}

	<-ctx.Done()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	sched.Stop()

	inFlight := lifecycle.RunsInFlight()
	logger.Info("waiting for in-flight runs", zap.Int64("count", inFlight))
	if err := lifecycle.WaitForRuns(shutdownCtx, 100*time.Millisecond); err != nil {
		logger.Warn("in-flight runs not completed", zap.Error(err), zap.Int64("remaining", lifecycle.RunsInFlight()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger, shutdownTracing, cfg.PushgatewayURL, serviceName); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
}
