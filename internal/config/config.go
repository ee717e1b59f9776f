package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds collector configuration loaded from YAML, secrets, .env and env.
type Config struct {
	ServerPort string `validate:"required,numeric"`

	WeatherAPIKey     string        `validate:"required"`
	WeatherAPIURL     string        `validate:"required,url"`
	WeatherAPITimeout time.Duration `validate:"gt=0"`

	CacheBackend          string `validate:"oneof=none in_memory memcached"`
	CacheTTL              time.Duration
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	CitiesFile string
	Cities     []string

	StorageSelected []string `validate:"min=1,dive,oneof=db text json"`
	DatabaseDSN     string
	TextPath        string
	TextDir         string
	JSONPath        string
	JSONDir         string

	// ClockLocation renders sunrise and sunset; empty means UTC.
	ClockLocation string

	ScheduleInterval time.Duration `validate:"gte=0"`

	ZipkinURL      string `validate:"omitempty,url"`
	PushgatewayURL string `validate:"omitempty,url"`

	BreakerEnabled             bool
	BreakerConsecutiveFailures uint32
	BreakerTimeout             time.Duration
	BreakerInterval            time.Duration
	BreakerMaxRequests         uint32

	ShutdownTimeout time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Cities struct {
		File string   `yaml:"file"`
		List []string `yaml:"list"`
	} `yaml:"cities"`

	Storage struct {
		Selected []string `yaml:"selected"`
		Database struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
		Text struct {
			Path string `yaml:"path"`
			Dir  string `yaml:"dir"`
		} `yaml:"text"`
		JSON struct {
			Path string `yaml:"path"`
			Dir  string `yaml:"dir"`
		} `yaml:"json"`
	} `yaml:"storage"`

	ClockLocation string `yaml:"clock_location"`

	Schedule struct {
		Interval string `yaml:"interval"`
	} `yaml:"schedule"`

	Telemetry struct {
		ZipkinURL      string `yaml:"zipkin_url"`
		PushgatewayURL string `yaml:"pushgateway_url"`
	} `yaml:"telemetry"`

	CircuitBreaker struct {
		Enabled             *bool  `yaml:"enabled"`
		ConsecutiveFailures uint32 `yaml:"consecutive_failures"`
		Timeout             string `yaml:"timeout"`
		Interval            string `yaml:"interval"`
		MaxRequests         uint32 `yaml:"max_requests"`
	} `yaml:"circuit_breaker"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
	DatabaseDSN   string `yaml:"database_dsn"`
}

const (
	defaultAPIURL      = "https://api.openweathermap.org/data/2.5/weather"
	defaultDatabaseDSN = "sqlite://data/weather.db"
	defaultTextPath    = "data/weather.txt"
	defaultJSONPath    = "data/weather.json"
)

var validate = validator.New()

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml.
// A .env file in the working directory, when present, is loaded into the environment first;
// variables already set win. Call from project root.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	sec, err := loadSecrets(filepath.Join(cwd, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.WeatherAPIKey = firstNonEmpty(os.Getenv("WEATHER_API_KEY"), sec.WeatherAPIKey)
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env, .env or config/secrets.yaml weather_api_key)")
	}
	cfg.WeatherAPIURL = firstNonEmpty(fc.WeatherAPI.URL, defaultAPIURL)
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 10*time.Second)

	cfg.CacheBackend = strings.ToLower(firstNonEmpty(os.Getenv("CACHE_BACKEND"), fc.Cache.Backend, "none"))
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 0)
	cfg.MemcachedAddrs = firstNonEmpty(os.Getenv("MEMCACHED_ADDRS"), fc.Cache.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.CitiesFile = strings.TrimSpace(fc.Cities.File)
	cfg.Cities = fc.Cities.List

	cfg.StorageSelected = fc.Storage.Selected
	if v := os.Getenv("STORAGE_SELECTED"); strings.TrimSpace(v) != "" {
		cfg.StorageSelected = splitList(v)
	}
	if len(cfg.StorageSelected) == 0 {
		cfg.StorageSelected = []string{"db", "text", "json"}
	}
	cfg.DatabaseDSN = firstNonEmpty(os.Getenv("DATABASE_DSN"), sec.DatabaseDSN, fc.Storage.Database.DSN, defaultDatabaseDSN)
	cfg.TextDir = strings.TrimSpace(fc.Storage.Text.Dir)
	cfg.TextPath = strings.TrimSpace(fc.Storage.Text.Path)
	if cfg.TextPath == "" && cfg.TextDir == "" {
		cfg.TextPath = defaultTextPath
	}
	cfg.JSONDir = strings.TrimSpace(fc.Storage.JSON.Dir)
	cfg.JSONPath = strings.TrimSpace(fc.Storage.JSON.Path)
	if cfg.JSONPath == "" && cfg.JSONDir == "" {
		cfg.JSONPath = defaultJSONPath
	}

	cfg.ClockLocation = strings.TrimSpace(fc.ClockLocation)

	interval := fc.Schedule.Interval
	if v := os.Getenv("SCHEDULE_INTERVAL"); v != "" {
		interval = v
	}
	cfg.ScheduleInterval = parseDurationOrZero(interval, 0)

	cfg.ZipkinURL = strings.TrimSpace(fc.Telemetry.ZipkinURL)
	cfg.PushgatewayURL = strings.TrimSpace(fc.Telemetry.PushgatewayURL)

	cfg.BreakerEnabled = true
	if fc.CircuitBreaker.Enabled != nil {
		cfg.BreakerEnabled = *fc.CircuitBreaker.Enabled
	}
	cfg.BreakerConsecutiveFailures = fc.CircuitBreaker.ConsecutiveFailures
	if cfg.BreakerConsecutiveFailures == 0 {
		cfg.BreakerConsecutiveFailures = 5
	}
	cfg.BreakerTimeout = parseDuration(fc.CircuitBreaker.Timeout, 30*time.Second)
	cfg.BreakerInterval = parseDuration(fc.CircuitBreaker.Interval, 60*time.Second)
	cfg.BreakerMaxRequests = fc.CircuitBreaker.MaxRequests
	if cfg.BreakerMaxRequests == 0 {
		cfg.BreakerMaxRequests = 1
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Location resolves ClockLocation.
func (c *Config) Location() (*time.Location, error) {
	if c.ClockLocation == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.ClockLocation)
}

// Scheduled reports whether the collector runs periodically instead of once.
func (c *Config) Scheduled() bool {
	return c.ScheduleInterval > 0
}

func loadSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// validateConfig runs struct-tag validation, then the cross-field rules tags cannot express.
func validateConfig(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("WEATHER_API_TIMEOUT must be positive")
	}
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.CacheBackend != "none" && cfg.CacheTTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive when cache.backend is %q", cfg.CacheBackend)
	}
	if _, err := cfg.Location(); err != nil {
		return fmt.Errorf("clock_location %q: %w", cfg.ClockLocation, err)
	}
	return nil
}
