package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-collector/internal/cache"
	"github.com/kjstillabower/weather-collector/internal/cities"
	"github.com/kjstillabower/weather-collector/internal/client"
	"github.com/kjstillabower/weather-collector/internal/config"
	"github.com/kjstillabower/weather-collector/internal/database"
	"github.com/kjstillabower/weather-collector/internal/mapper"
	"github.com/kjstillabower/weather-collector/internal/repository"
	"github.com/kjstillabower/weather-collector/internal/service"
	"github.com/kjstillabower/weather-collector/internal/storage"
	"github.com/kjstillabower/weather-collector/internal/unitofwork"
)

// pipeline is everything main needs to run and later tear down.
type pipeline struct {
	orchestrator *service.Orchestrator
	provider     *client.OpenWeatherClient
	db           *database.DB
	memcached    *cache.MemcachedCache
}

func (p *pipeline) close(logger *zap.Logger) {
	if p.memcached != nil {
		if err := p.memcached.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			logger.Error("database close", zap.Error(err))
		}
	}
}

// buildPipeline wires the client, cache, storage backends and orchestrator from cfg.
// The database is opened and migrated only when the db backend is selected.
func buildPipeline(ctx context.Context, cfg *config.Config, tp trace.TracerProvider, startedAt time.Time, logger *zap.Logger) (*pipeline, error) {
	p := &pipeline{}
	ok := false
	defer func() {
		if !ok {
			p.close(logger)
		}
	}()

	wc, err := newWeatherClient(cfg, p, logger)
	if err != nil {
		return nil, err
	}

	services, err := newStorageServices(ctx, cfg, p, startedAt, logger)
	if err != nil {
		return nil, err
	}
	sm, err := storage.NewManager(services, cfg.StorageSelected)
	if err != nil {
		return nil, err
	}

	src, err := cities.New(cfg.CitiesFile, cfg.Cities)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("clock location: %w", err)
	}

	var opts []service.Option
	if tp != nil {
		opts = append(opts, service.WithTracer(tp))
	}
	p.orchestrator = service.NewOrchestrator(src, wc, mapper.NewDomainMapper(loc), sm, logger, opts...)
	ok = true
	return p, nil
}

func newWeatherClient(cfg *config.Config, p *pipeline, logger *zap.Logger) (client.WeatherClient, error) {
	owm, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if err != nil {
		return nil, fmt.Errorf("weather client: %w", err)
	}
	p.provider = owm
	if cfg.BreakerEnabled {
		owm.UseCircuitBreaker(client.NewCircuitBreaker(client.BreakerSettings{
			ConsecutiveFailures: cfg.BreakerConsecutiveFailures,
			Interval:            cfg.BreakerInterval,
			Timeout:             cfg.BreakerTimeout,
			MaxRequests:         cfg.BreakerMaxRequests,
		}, logger))
		logger.Info("circuit breaker enabled",
			zap.Uint32("consecutive_failures", cfg.BreakerConsecutiveFailures),
			zap.Duration("timeout", cfg.BreakerTimeout))
	}

	switch cfg.CacheBackend {
	case cache.BackendMemcached:
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return nil, fmt.Errorf("memcached cache: %w", err)
		}
		p.memcached = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs), zap.Duration("ttl", cfg.CacheTTL))
		return client.NewCachingClient(owm, mc, cfg.CacheTTL, cache.BackendMemcached, logger), nil
	case cache.BackendInMemory:
		logger.Info("cache backend: in_memory", zap.Duration("ttl", cfg.CacheTTL))
		return client.NewCachingClient(owm, cache.NewInMemoryCache(), cfg.CacheTTL, cache.BackendInMemory, logger), nil
	default:
		return owm, nil
	}
}

func newStorageServices(ctx context.Context, cfg *config.Config, p *pipeline, startedAt time.Time, logger *zap.Logger) ([]storage.StorageService, error) {
	var services []storage.StorageService

	if slices.Contains(cfg.StorageSelected, storage.DesignationDatabase) {
		db, err := database.Open(ctx, cfg.DatabaseDSN, logger)
		if err != nil {
			return nil, err
		}
		p.db = db
		if err := db.Migrate(ctx); err != nil {
			return nil, err
		}
		repos := repository.NewManager(repository.NewDatabaseRepository(db.Dialect(), logger))
		uow := unitofwork.New(repos, db, []string{repository.WeatherRepositoryName}, logger)
		services = append(services, storage.NewDatabaseService(uow, storage.DesignationDatabase, logger))
	}

	if slices.Contains(cfg.StorageSelected, storage.DesignationText) {
		repo, err := repository.NewTextFileRepository(outputPath(cfg.TextPath, cfg.TextDir, "txt", startedAt), logger)
		if err != nil {
			return nil, err
		}
		logger.Info("text output", zap.String("path", repo.Path()))
		services = append(services, storage.NewFileService(repo, storage.DesignationText, logger))
	}

	if slices.Contains(cfg.StorageSelected, storage.DesignationJSON) {
		repo, err := repository.NewJSONFileRepository(outputPath(cfg.JSONPath, cfg.JSONDir, "json", startedAt), logger)
		if err != nil {
			return nil, err
		}
		logger.Info("json output", zap.String("path", repo.Path()))
		services = append(services, storage.NewFileService(repo, storage.DesignationJSON, logger))
	}
	return services, nil
}

// outputPath returns path when set, otherwise dir/meteo_<unix micros>.<ext>.
func outputPath(path, dir, ext string, startedAt time.Time) string {
	if path != "" {
		return path
	}
	return filepath.Join(dir, "meteo_"+strconv.FormatInt(startedAt.UnixMicro(), 10)+"."+ext)
}

// checkAPIKey asks the provider whether the configured key is accepted. Only a rejected
// key is an error; an unreachable provider is logged and left to the runs to report.
func checkAPIKey(ctx context.Context, p *pipeline, logger *zap.Logger) error {
	err := p.provider.ValidateAPIKey(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, client.ErrInvalidAPIKey):
		return err
	default:
		logger.Warn("could not validate API key", zap.Error(err))
		return nil
	}
}
