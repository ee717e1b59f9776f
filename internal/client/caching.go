package client

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-collector/internal/cache"
	"github.com/kjstillabower/weather-collector/internal/models"
	"github.com/kjstillabower/weather-collector/internal/observability"
	"github.com/kjstillabower/weather-collector/internal/validation"
)

// CachingClient serves recent provider responses from a cache. Cache failures
// fall through to the wrapped client.
type CachingClient struct {
	next      WeatherClient
	cache     cache.Cache
	ttl       time.Duration
	cacheType string
	logger    *zap.Logger
}

func NewCachingClient(next WeatherClient, c cache.Cache, ttl time.Duration, cacheType string, logger *zap.Logger) *CachingClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachingClient{next: next, cache: c, ttl: ttl, cacheType: cacheType, logger: logger}
}

// Get returns a cached payload re-stamped with timestamp, or fetches and caches a fresh one.
func (c *CachingClient) Get(ctx context.Context, city string, timestamp time.Time) (models.RawWeatherPayload, error) {
	key := validation.NormalizeCity(city)

	cached, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache get failed", zap.String("city", city), zap.Error(err))
	}
	if ok {
		observability.CacheHitsTotal.WithLabelValues(c.cacheType).Inc()
		return cached.WithTimestamp(timestamp), nil
	}

	payload, err := c.next.Get(ctx, city, timestamp)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, payload, c.ttl); err != nil {
		c.logger.Warn("cache set failed", zap.String("city", city), zap.Error(err))
	}
	return payload, nil
}
