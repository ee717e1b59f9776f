//go:build integration
// +build integration

package client

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/kjstillabower/weather-collector/internal/mapper"
)

func isValidAPIKeyFormat(key string) error {
	if len(key) != 32 {
		return fmt.Errorf("API key length is %d, expected 32", len(key))
	}
	if !regexp.MustCompile(`^[0-9a-fA-F]+$`).MatchString(key) {
		return fmt.Errorf("API key contains non-hexadecimal characters")
	}
	return nil
}

func integrationClient(t *testing.T) *OpenWeatherClient {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}
	if err := isValidAPIKeyFormat(apiKey); err != nil {
		t.Fatalf("API key format validation failed: %v", err)
	}
	c, err := NewOpenWeatherClient(apiKey, DefaultAPIURL, 5*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	return c
}

func TestOpenWeatherClient_ValidateAPIKey_Integration(t *testing.T) {
	if err := integrationClient(t).ValidateAPIKey(context.Background()); err != nil {
		t.Errorf("ValidateAPIKey() error = %v, want nil (API key may not be activated yet)", err)
	}
}

// TestOpenWeatherClient_Get_Integration verifies a live response maps to a domain record.
func TestOpenWeatherClient_Get_Integration(t *testing.T) {
	payload, err := integrationClient(t).Get(context.Background(), "London", time.Now())
	if err != nil {
		t.Fatalf("Get() error = %v (API key may not be activated yet)", err)
	}
	rec, err := mapper.NewDomainMapper(nil).ToDomain(payload)
	if err != nil {
		t.Fatalf("ToDomain() error = %v", err)
	}
	if rec.City == "" {
		t.Error("mapped record has empty city")
	}
}
