package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestMetrics_Usable verifies label dimensions match usage in the client, storage, service and http packages.
func TestMetrics_Usable(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("POST", "/runs", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("POST", "/runs").Observe(0.01)
	WeatherAPICallsTotal.WithLabelValues("success").Inc()
	WeatherAPIDuration.WithLabelValues("error").Observe(0.1)
	FetchErrorsTotal.WithLabelValues("fetch").Inc()
	CacheHitsTotal.WithLabelValues("in_memory").Inc()
	StorageWritesTotal.WithLabelValues("db", "ok").Inc()
	StorageWriteDuration.WithLabelValues("json").Observe(0.02)
	PipelineRunsTotal.WithLabelValues("success").Inc()
	PipelineRunDuration.Observe(1.5)
	RecordsCollected.Set(2)
	LastSuccessfulRun.SetToCurrentTime()
}

// TestMetricsHandler_ServesPrometheusFormat verifies that MetricsHandler serves
// Prometheus text exposition format with correct HTTP status and metric output.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	PipelineRunsTotal.WithLabelValues("success").Inc()

	w := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "pipelineRunsTotal") {
		t.Error("MetricsHandler response should contain pipelineRunsTotal")
	}
}

// TestPushMetrics verifies the registry is sent to the gateway under the job path.
func TestPushMetrics(t *testing.T) {
	type pushed struct{ path, body string }
	got := make(chan pushed, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got <- pushed{r.URL.Path, string(b)}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	RecordsCollected.Set(3)
	if err := PushMetrics(context.Background(), srv.URL, "weather_collector"); err != nil {
		t.Fatalf("PushMetrics() error = %v", err)
	}
	p := <-got
	if p.path != "/metrics/job/weather_collector" {
		t.Errorf("push path = %q", p.path)
	}
	if p.body == "" {
		t.Error("push body is empty")
	}
}

func TestPushMetrics_NoURL(t *testing.T) {
	if err := PushMetrics(context.Background(), "", "job"); err != nil {
		t.Errorf("PushMetrics(\"\") error = %v, want nil", err)
	}
}

func TestPushMetrics_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := PushMetrics(context.Background(), srv.URL, "job"); err == nil {
		t.Error("PushMetrics() error = nil, want error on 500")
	}
}
