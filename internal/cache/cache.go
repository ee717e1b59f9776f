package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/weather-collector/internal/models"
)

// Backend names accepted in configuration.
const (
	BackendNone      = "none"
	BackendInMemory  = "in_memory"
	BackendMemcached = "memcached"
)

// Cache stores provider payloads by city.
// Get returns (payload, true, nil) on a live hit and (nil, false, nil) on a miss or expiry.
type Cache interface {
	Get(ctx context.Context, key string) (models.RawWeatherPayload, bool, error)
	Set(ctx context.Context, key string, value models.RawWeatherPayload, ttl time.Duration) error
}

// InMemoryCache is a map with per-entry expiry. Safe for concurrent use;
// expired entries are removed on access.
type InMemoryCache struct {
	mu   sync.Mutex
	data map[string]cacheEntry
	now  func() time.Time
}

type cacheEntry struct {
	value     models.RawWeatherPayload
	expiresAt time.Time
}

func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
		now:  time.Now,
	}
}

func (c *InMemoryCache) Get(_ context.Context, key string) (models.RawWeatherPayload, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.data, key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (c *InMemoryCache) Set(_ context.Context, key string, value models.RawWeatherPayload, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = cacheEntry{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

// Len reports the number of stored entries, expired or not.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
