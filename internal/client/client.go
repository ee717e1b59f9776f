package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kjstillabower/weather-collector/internal/models"
	"github.com/kjstillabower/weather-collector/internal/observability"
	"github.com/kjstillabower/weather-collector/internal/validation"
)

// WeatherClient fetches the current observation for one city.
type WeatherClient interface {
	Get(ctx context.Context, city string, timestamp time.Time) (models.RawWeatherPayload, error)
}

var (
	// ErrFetch covers transport failures, non-2xx responses and an open circuit.
	ErrFetch = errors.New("weather fetch failed")
	// ErrParse means the body was not a JSON object.
	ErrParse = errors.New("weather response not parseable")
	// ErrData means a required field was missing or the request was invalid.
	ErrData = errors.New("weather data invalid")
	// ErrClient wraps anything else.
	ErrClient = errors.New("weather client error")

	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrLocationNotFound = errors.New("location not found")
	ErrRateLimited      = errors.New("rate limited")
	ErrUpstreamFailure  = errors.New("upstream failure")
)

// DefaultAPIURL is the OpenWeatherMap current weather endpoint.
const DefaultAPIURL = "https://api.openweathermap.org/data/2.5/weather"

const maxBodyBytes = 1 << 20

type OpenWeatherClient struct {
	apiKey  string
	apiURL  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewOpenWeatherClient(apiKey, apiURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if _, err := url.Parse(apiURL); err != nil {
		return nil, fmt.Errorf("%w: invalid API URL: %w", ErrClient, err)
	}

	return &OpenWeatherClient{
		apiKey: apiKey,
		apiURL: apiURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// UseCircuitBreaker routes every round trip through cb. While the breaker is open,
// Get fails immediately with ErrFetch.
func (c *OpenWeatherClient) UseCircuitBreaker(cb *gobreaker.CircuitBreaker) {
	c.breaker = cb
}

// Get performs one GET for city and returns the decoded body stamped with timestamp.
func (c *OpenWeatherClient) Get(ctx context.Context, city string, timestamp time.Time) (models.RawWeatherPayload, error) {
	name, err := validation.ValidateCity(city)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrData, err)
	}

	req, err := c.buildRequest(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrClient, err)
	}
	if id := observability.RunIDFromContext(ctx); id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}

	status, body, err := c.roundTrip(req)
	if err != nil {
		return nil, err
	}
	if err := handleErrorResponse(status); err != nil {
		return nil, err
	}

	var payload models.RawWeatherPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: body is not a JSON object", ErrParse)
	}
	if err := verifyPayload(payload); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrData, name, err)
	}
	return payload.WithTimestamp(timestamp), nil
}

func (c *OpenWeatherClient) roundTrip(req *http.Request) (int, []byte, error) {
	type response struct {
		status int
		body   []byte
	}
	do := func() (interface{}, error) {
		start := time.Now()
		resp, err := c.client.Do(req)
		if err != nil {
			observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
			observability.WeatherAPIDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
			return nil, fmt.Errorf("%w: http request failed: %w", ErrFetch, err)
		}
		defer resp.Body.Close()

		status := statusLabel(resp.StatusCode)
		observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
		observability.WeatherAPIDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("%w: read response body: %w", ErrFetch, err)
		}
		// Only upstream 5xx counts against the breaker; 4xx is the caller's problem.
		if resp.StatusCode >= 500 {
			return nil, handleErrorResponse(resp.StatusCode)
		}
		return response{status: resp.StatusCode, body: body}, nil
	}

	var (
		result interface{}
		err    error
	)
	if c.breaker != nil {
		result, err = c.breaker.Execute(do)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return 0, nil, fmt.Errorf("%w: circuit breaker %s: %w", ErrFetch, c.breaker.Name(), err)
		}
	} else {
		result, err = do()
	}
	if err != nil {
		return 0, nil, err
	}
	r := result.(response)
	return r.status, r.body, nil
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, city string) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := baseURL.Query()
	params.Set("q", city)
	params.Set("appid", c.apiKey)
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func handleErrorResponse(statusCode int) error {
	switch statusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", ErrFetch, ErrInvalidAPIKey)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrFetch, ErrLocationNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", ErrFetch, ErrRateLimited)
	}
	if statusCode >= 500 {
		return fmt.Errorf("%w: %w: HTTP %d", ErrFetch, ErrUpstreamFailure, statusCode)
	}
	if statusCode < 200 || statusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrFetch, statusCode)
	}
	return nil
}

// verifyPayload checks the fields the domain mapper depends on.
func verifyPayload(p models.RawWeatherPayload) error {
	if _, ok := p["name"].(string); !ok {
		return errors.New(`missing "name"`)
	}
	main, ok := p["main"].(map[string]any)
	if !ok {
		return errors.New(`missing "main"`)
	}
	if _, ok := main["temp"].(float64); !ok {
		return errors.New(`missing "main.temp"`)
	}
	weather, ok := p["weather"].([]any)
	if !ok || len(weather) == 0 {
		return errors.New(`missing "weather"`)
	}
	first, ok := weather[0].(map[string]any)
	if !ok {
		return errors.New(`malformed "weather[0]"`)
	}
	if _, ok := first["main"].(string); !ok {
		return errors.New(`missing "weather[0].main"`)
	}
	sys, ok := p["sys"].(map[string]any)
	if !ok {
		return errors.New(`missing "sys"`)
	}
	for _, key := range []string{"sunrise", "sunset"} {
		if _, ok := sys[key].(float64); !ok {
			return fmt.Errorf("missing %q", "sys."+key)
		}
	}
	return nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// ValidateAPIKey makes one request for a well-known city and reports whether the key is accepted.
func (c *OpenWeatherClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := c.buildRequest(ctx, "London")
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("validation failed: HTTP %d", resp.StatusCode)
	}
	return nil
}
