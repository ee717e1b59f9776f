package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-collector/internal/lifecycle"
	"github.com/kjstillabower/weather-collector/internal/observability"
	"github.com/kjstillabower/weather-collector/internal/service"
)

// Collector is the orchestrator surface the ops endpoints need.
type Collector interface {
	Run(ctx context.Context) (service.Report, error)
	LastReport() (service.Report, bool)
}

// HealthConfig holds thresholds and dependency probes for the health handler.
type HealthConfig struct {
	// StaleAfter marks the service degraded when the last run's batch time is older; 0 disables.
	StaleAfter time.Duration
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
	// DatabasePing, when set, checks the relational backend.
	DatabasePing func(ctx context.Context) error
	// PingTimeout bounds DatabasePing; zero means defaultPingTimeout.
	PingTimeout time.Duration
	Version     string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	collector        Collector
	healthConfig     *HealthConfig
	logger           *zap.Logger
	now              func() time.Time
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(collector Collector, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if healthConfig == nil {
		healthConfig = &HealthConfig{}
	}
	return &Handler{
		collector:    collector,
		healthConfig: healthConfig,
		logger:       logger,
		now:          time.Now,
	}
}

// runSummary is the JSON view of a service.Report.
type runSummary struct {
	RunID           string           `json:"runId"`
	Timestamp       string           `json:"timestamp,omitempty"`
	Cities          int              `json:"cities"`
	Records         int              `json:"records"`
	DurationMs      int64            `json:"durationMs"`
	Storage         []storageSummary `json:"storage"`
	Error           string           `json:"error,omitempty"`
	StorageFailures int              `json:"storageFailures"`
}

type storageSummary struct {
	Designation string `json:"designation"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}

func summarize(r service.Report) runSummary {
	s := runSummary{
		RunID:      r.RunID,
		Cities:     len(r.Cities),
		Records:    len(r.Records),
		DurationMs: r.Duration.Milliseconds(),
		Storage:    make([]storageSummary, 0, len(r.Results)),
	}
	if !r.Timestamp.IsZero() {
		s.Timestamp = r.Timestamp.Format(time.RFC3339)
	}
	if r.Err != nil {
		s.Error = r.Err.Error()
	}
	for _, res := range r.Results {
		ss := storageSummary{Designation: res.Designation, Status: res.Status()}
		if res.Err != nil {
			ss.Error = res.Err.Error()
			s.StorageFailures++
		}
		s.Storage = append(s.Storage, ss)
	}
	return s
}

// PostRun handles POST /runs: runs the pipeline synchronously and returns the report.
func (h *Handler) PostRun(w http.ResponseWriter, r *http.Request) {
	if lifecycle.IsShuttingDown() {
		writeError(w, r, http.StatusServiceUnavailable, "SHUTTING_DOWN", "Service is shutting down")
		return
	}
	done := lifecycle.BeginRun()
	defer done()

	report, err := h.collector.Run(r.Context())
	switch {
	case errors.Is(err, service.ErrRunInProgress):
		writeError(w, r, http.StatusConflict, "RUN_IN_PROGRESS", "A collection run is already in progress")
	case err != nil:
		requestLogger(r, h.logger).Warn("manual run failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, summarize(report))
	default:
		writeJSON(w, http.StatusOK, summarize(report))
	}
}

// GetLastRun handles GET /runs/last.
func (h *Handler) GetLastRun(w http.ResponseWriter, r *http.Request) {
	report, ok := h.collector.LastReport()
	if !ok {
		writeError(w, r, http.StatusNotFound, "NO_RUNS", "No collection run has finished yet")
		return
	}
	writeJSON(w, http.StatusOK, summarize(report))
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	checks := h.dependencyChecks(r.Context())
	result := h.computeHealthStatus(checks)

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "weather-collector",
		"version":   h.version(),
		"checks":    checks,
		"timestamp": h.now().UTC().Format(time.RFC3339),
	}
	if result.reason != "" {
		resp["reason"] = result.reason
	}
	if last, ok := h.collector.LastReport(); ok {
		resp["lastRun"] = summarize(last)
	}
	writeJSON(w, result.statusCode, resp)
}

func (h *Handler) version() string {
	if h.healthConfig.Version == "" {
		return "dev"
	}
	return h.healthConfig.Version
}

const defaultPingTimeout = 2 * time.Second

func (h *Handler) dependencyChecks(ctx context.Context) map[string]string {
	checks := make(map[string]string)
	if h.healthConfig.DatabasePing != nil {
		timeout := h.healthConfig.PingTimeout
		if timeout <= 0 {
			timeout = defaultPingTimeout
		}
		// SQLite has one connection; an open unit of work holds it until commit.
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		checks["database"] = checkStatus(h.healthConfig.DatabasePing(pingCtx))
		cancel()
	}
	if h.healthConfig.CachePing != nil {
		checks["cache"] = checkStatus(h.healthConfig.CachePing())
	}
	return checks
}

func checkStatus(err error) string {
	if err != nil {
		return "unhealthy"
	}
	return "healthy"
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > database unreachable > starting > last run failed > stale > healthy.
// An unreachable cache is reported in checks only; runs still succeed without it.
func (h *Handler) computeHealthStatus(checks map[string]string) healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if checks["database"] == "unhealthy" {
		return healthResult{"degraded", http.StatusServiceUnavailable, "database_unreachable"}
	}
	last, ok := h.collector.LastReport()
	if !ok {
		return healthResult{"starting", http.StatusOK, "no_runs_yet"}
	}
	if last.Err != nil {
		return healthResult{"degraded", http.StatusServiceUnavailable, "last_run_failed"}
	}
	if h.healthConfig.StaleAfter > 0 && h.now().Sub(last.Timestamp) > h.healthConfig.StaleAfter {
		return healthResult{"degraded", http.StatusServiceUnavailable, "stale_data"}
	}
	if len(last.Failed()) > 0 {
		return healthResult{"healthy", http.StatusOK, "storage_partial_failure"}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.RunIDFromContext(r.Context()),
		},
	})
}
