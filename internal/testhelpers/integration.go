//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kjstillabower/weather-collector/internal/cache"
	"github.com/kjstillabower/weather-collector/internal/cities"
	"github.com/kjstillabower/weather-collector/internal/client"
	"github.com/kjstillabower/weather-collector/internal/mapper"
	"github.com/kjstillabower/weather-collector/internal/observability"
	"github.com/kjstillabower/weather-collector/internal/repository"
	"github.com/kjstillabower/weather-collector/internal/service"
	"github.com/kjstillabower/weather-collector/internal/storage"
	"github.com/kjstillabower/weather-collector/internal/unitofwork"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	APIURL        string
	CacheBackend  string // "none", "in_memory" or "memcached"
	MemcachedAddr string
	Cities        []string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}

	apiURL := os.Getenv("WEATHER_API_URL")
	if apiURL == "" {
		apiURL = client.DefaultAPIURL
	}

	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}

	return IntegrationTestConfig{
		APIKey:        apiKey,
		APIURL:        apiURL,
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
		Cities:        []string{"London", "Tokyo", "Nizhny Novgorod"},
	}
}

// IntegrationPipeline is a live orchestrator writing to a temp dir.
type IntegrationPipeline struct {
	Orchestrator *service.Orchestrator
	TextPath     string
	JSONPath     string
}

// SetupIntegrationPipeline wires the live client, an optional cache, and all three
// backends (SQLite, text, JSON) under t.TempDir().
func SetupIntegrationPipeline(t *testing.T, cfg IntegrationTestConfig) IntegrationPipeline {
	t.Helper()
	logger, err := observability.NewLogger("weather-collector-test")
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	var wc client.WeatherClient = SetupIntegrationClient(t, cfg)
	switch cfg.CacheBackend {
	case cache.BackendMemcached:
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err == nil && mc.Ping() == nil {
			t.Cleanup(func() { _ = mc.Close() })
			wc = client.NewCachingClient(wc, mc, time.Minute, cache.BackendMemcached, logger)
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
		} else {
			t.Logf("Memcached not available, using in-memory cache")
			wc = client.NewCachingClient(wc, cache.NewInMemoryCache(), time.Minute, cache.BackendInMemory, logger)
		}
	case cache.BackendInMemory:
		wc = client.NewCachingClient(wc, cache.NewInMemoryCache(), time.Minute, cache.BackendInMemory, logger)
	}

	src, err := cities.NewStaticSource(cfg.Cities)
	if err != nil {
		t.Fatalf("NewStaticSource() error = %v", err)
	}

	dir := t.TempDir()
	db := OpenSQLite(t)
	dbRepo := repository.NewDatabaseRepository(db.Dialect(), logger)
	uow := unitofwork.New(repository.NewManager(dbRepo), db, []string{repository.WeatherRepositoryName}, logger)
	p := IntegrationPipeline{
		TextPath: filepath.Join(dir, "weather.txt"),
		JSONPath: filepath.Join(dir, "weather.json"),
	}
	textRepo, err := repository.NewTextFileRepository(p.TextPath, logger)
	if err != nil {
		t.Fatalf("NewTextFileRepository() error = %v", err)
	}
	jsonRepo, err := repository.NewJSONFileRepository(p.JSONPath, logger)
	if err != nil {
		t.Fatalf("NewJSONFileRepository() error = %v", err)
	}
	sm, err := storage.NewManager([]storage.StorageService{
		storage.NewDatabaseService(uow, storage.DesignationDatabase, logger),
		storage.NewFileService(textRepo, storage.DesignationText, logger),
		storage.NewFileService(jsonRepo, storage.DesignationJSON, logger),
	}, storage.Designations())
	if err != nil {
		t.Fatalf("storage.NewManager() error = %v", err)
	}

	p.Orchestrator = service.NewOrchestrator(src, wc, mapper.NewDomainMapper(nil), sm, logger)
	return p
}

// SetupIntegrationClient creates a weather client for integration tests.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) *client.OpenWeatherClient {
	t.Helper()
	c, err := client.NewOpenWeatherClient(cfg.APIKey, cfg.APIURL, 5*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	return c
}
