package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/weather-collector/internal/models"
)

const keyPrefix = "weather-collector:"

// maxRelativeExp is the largest expiration memcached treats as relative seconds.
const maxRelativeExp = 30 * 24 * 60 * 60

// MemcachedCache stores payloads as JSON in memcached.
type MemcachedCache struct {
	client *memcache.Client
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		return nil, errors.New("memcached: no server addresses")
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// key maps a city to a memcached-safe key: no spaces or control characters allowed.
func (c *MemcachedCache) key(k string) string {
	return keyPrefix + strings.ReplaceAll(strings.ToLower(k), " ", "_")
}

func (c *MemcachedCache) Get(ctx context.Context, key string) (models.RawWeatherPayload, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var payload models.RawWeatherPayload
	if err := json.Unmarshal(item.Value, &payload); err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

// Set stores value without its batch timestamp; the caller re-stamps on read.
func (c *MemcachedCache) Set(ctx context.Context, key string, value models.RawWeatherPayload, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stripped := make(models.RawWeatherPayload, len(value))
	for k, v := range value {
		if k != models.TimestampKey {
			stripped[k] = v
		}
	}
	raw, err := json.Marshal(stripped)
	if err != nil {
		return err
	}
	return c.client.Set(&memcache.Item{
		Key:        c.key(key),
		Value:      raw,
		Expiration: expirationSeconds(ttl),
	})
}

func expirationSeconds(ttl time.Duration) int32 {
	exp := int32(ttl.Seconds())
	if exp <= 0 || exp > maxRelativeExp {
		return 3600
	}
	return exp
}

// Ping checks if memcached is reachable.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
