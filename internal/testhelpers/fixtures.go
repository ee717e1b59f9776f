// Package testhelpers holds fakes and fixtures shared by pipeline-level tests.
package testhelpers

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kjstillabower/weather-collector/internal/database"
	"github.com/kjstillabower/weather-collector/internal/models"
)

// Payload returns an OpenWeatherMap-shaped body for city, without the batch timestamp.
// Numbers are float64, as encoding/json produces them.
func Payload(city, category string, kelvin float64, sunrise, sunset int64) models.RawWeatherPayload {
	return models.RawWeatherPayload{
		"name": city,
		"weather": []any{
			map[string]any{"id": float64(800), "main": category, "description": category},
		},
		"main": map[string]any{"temp": kelvin, "humidity": float64(80)},
		"sys":  map[string]any{"sunrise": float64(sunrise), "sunset": float64(sunset)},
		"cod":  float64(200),
	}
}

// FakeWeatherClient serves canned payloads per city and stamps them like the real client.
type FakeWeatherClient struct {
	Payloads map[string]models.RawWeatherPayload
	Errs     map[string]error
	// Block, when set, is waited on before every call returns.
	Block chan struct{}

	mu    sync.Mutex
	calls []string
}

func (f *FakeWeatherClient) Get(ctx context.Context, city string, timestamp time.Time) (models.RawWeatherPayload, error) {
	f.mu.Lock()
	f.calls = append(f.calls, city)
	f.mu.Unlock()

	if f.Block != nil {
		select {
		case <-f.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := f.Errs[city]; ok {
		return nil, err
	}
	p, ok := f.Payloads[city]
	if !ok {
		p = Payload(city, "Clear", 280.15, 1707190380, 1707227848)
	}
	return p.WithTimestamp(timestamp), nil
}

// Calls returns the cities requested so far, in call order.
func (f *FakeWeatherClient) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// OpenSQLite opens a migrated SQLite database in a temp dir, closed on cleanup.
func OpenSQLite(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "weather.db"), nil)
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}
