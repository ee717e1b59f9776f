// Package service runs the collection pipeline: city list, concurrent fetch,
// mapping and concurrent persistence.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-collector/internal/cities"
	"github.com/kjstillabower/weather-collector/internal/client"
	"github.com/kjstillabower/weather-collector/internal/models"
	"github.com/kjstillabower/weather-collector/internal/observability"
	"github.com/kjstillabower/weather-collector/internal/storage"
)

// ErrRunInProgress is returned when Run is called while another run is still going.
var ErrRunInProgress = errors.New("collection run already in progress")

// Run status labels for PipelineRunsTotal.
const (
	statusSuccess      = "success"
	statusCitiesError  = "cities_error"
	statusFetchError   = "fetch_error"
	statusMappingError = "mapping_error"
	statusBusy         = "busy"
)

// DomainMapper turns one provider payload into a record.
type DomainMapper interface {
	ToDomain(payload models.RawWeatherPayload) (models.WeatherRecord, error)
}

// Report describes one finished run. Storage failures appear in Results, never in Err.
type Report struct {
	RunID     string
	Timestamp time.Time
	Cities    []string
	Records   []models.WeatherRecord
	Results   []storage.Result
	Duration  time.Duration
	Err       error
}

// Failed returns the storage results that did not succeed.
func (r Report) Failed() []storage.Result {
	var out []storage.Result
	for _, res := range r.Results {
		if !res.OK() {
			out = append(out, res)
		}
	}
	return out
}

// Orchestrator coordinates one collection run end to end.
type Orchestrator struct {
	cities  cities.Source
	client  client.WeatherClient
	mapper  DomainMapper
	storage *storage.Manager
	tracer  trace.Tracer
	logger  *zap.Logger
	now     func() time.Time

	running sync.Mutex

	mu   sync.RWMutex
	last *Report
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTracer sets the tracer for run, stage, fetch and storage spans.
func WithTracer(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) {
		if tp != nil {
			o.tracer = tp.Tracer("weather-collector/service")
		}
	}
}

// WithClock replaces time.Now for the batch timestamp.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func NewOrchestrator(src cities.Source, wc client.WeatherClient, dm DomainMapper, sm *storage.Manager, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		cities:  src,
		client:  wc,
		mapper:  dm,
		storage: sm,
		tracer:  noop.NewTracerProvider().Tracer(""),
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start runs the pipeline once and discards the report.
func (o *Orchestrator) Start(ctx context.Context) error {
	_, err := o.Run(ctx)
	return err
}

// Run executes cities, fetch, map and store in order. The first three stages are
// fatal on error; the store stage always completes and reports per-backend results.
func (o *Orchestrator) Run(ctx context.Context) (report Report, err error) {
	if !o.running.TryLock() {
		observability.PipelineRunsTotal.WithLabelValues(statusBusy).Inc()
		return Report{}, ErrRunInProgress
	}
	defer o.running.Unlock()

	report.RunID = uuid.NewString()
	ctx = observability.WithRunID(ctx, report.RunID)
	ctx, span := o.tracer.Start(ctx, "collector.run", trace.WithAttributes(attribute.String("run.id", report.RunID)))
	defer span.End()

	logger := o.logger.With(zap.String("runId", report.RunID))
	start := time.Now()
	status := statusSuccess
	defer func() {
		report.Duration = time.Since(start)
		report.Err = err
		observability.PipelineRunsTotal.WithLabelValues(status).Inc()
		observability.PipelineRunDuration.Observe(report.Duration.Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, status)
			logger.Error("collection run failed", zap.String("status", status), zap.Duration("duration", report.Duration), zap.Error(err))
		} else {
			observability.RecordsCollected.Set(float64(len(report.Records)))
			observability.LastSuccessfulRun.SetToCurrentTime()
			logger.Info("collection run finished",
				zap.Int("records", len(report.Records)),
				zap.Int("storageFailures", len(report.Failed())),
				zap.Duration("duration", report.Duration),
			)
		}
		o.setLast(report)
	}()

	logger.Info("collection run started")

	names, err := o.cities.Cities(ctx)
	if err != nil {
		status = statusCitiesError
		if !errors.Is(err, cities.ErrRetrieval) {
			err = fmt.Errorf("%w: %w", cities.ErrRetrieval, err)
		}
		return report, err
	}
	report.Cities = names
	span.SetAttributes(attribute.Int("cities", len(names)))

	report.Timestamp = models.TruncateTimestamp(o.now())
	payloads, err := o.fetch(ctx, logger, names, report.Timestamp)
	if err != nil {
		status = statusFetchError
		return report, err
	}

	records, err := o.convert(ctx, payloads, names)
	if err != nil {
		status = statusMappingError
		return report, err
	}
	report.Records = records

	report.Results = o.save(ctx, records)
	return report, nil
}

// LastReport returns the most recent finished run, if any.
func (o *Orchestrator) LastReport() (Report, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.last == nil {
		return Report{}, false
	}
	return *o.last, true
}

func (o *Orchestrator) setLast(r Report) {
	o.mu.Lock()
	o.last = &r
	o.mu.Unlock()
}

// fetch calls the client for every city concurrently and waits for all of them.
// Any failure fails the stage; all failures are joined in city order.
func (o *Orchestrator) fetch(ctx context.Context, logger *zap.Logger, names []string, ts time.Time) ([]models.RawWeatherPayload, error) {
	ctx, span := o.tracer.Start(ctx, "collector.fetch")
	defer span.End()

	payloads := make([]models.RawWeatherPayload, len(names))
	errs := make([]error, len(names))

	var wg sync.WaitGroup
	for i, city := range names {
		i, city := i, city
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, citySpan := o.tracer.Start(ctx, "collector.fetch.city", trace.WithAttributes(attribute.String("city", city)))
			defer citySpan.End()

			p, err := o.client.Get(ctx, city, ts)
			if err != nil {
				category := client.CategorizeError(err)
				observability.FetchErrorsTotal.WithLabelValues(string(category)).Inc()
				citySpan.RecordError(err)
				citySpan.SetStatus(codes.Error, string(category))
				logger.Warn("weather fetch failed",
					zap.String("city", city),
					zap.String("category", string(category)),
					zap.Error(err),
				)
				errs[i] = fmt.Errorf("%s: %w", city, err)
				return
			}
			payloads[i] = p
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("fetch weather: %w", err)
	}
	return payloads, nil
}

func (o *Orchestrator) convert(ctx context.Context, payloads []models.RawWeatherPayload, names []string) ([]models.WeatherRecord, error) {
	_, span := o.tracer.Start(ctx, "collector.map")
	defer span.End()

	records := make([]models.WeatherRecord, 0, len(payloads))
	for i, p := range payloads {
		rec, err := o.mapper.ToDomain(p)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("map %s: %w", names[i], err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// save runs every selected storage service concurrently. Results keep selection order.
func (o *Orchestrator) save(ctx context.Context, records []models.WeatherRecord) []storage.Result {
	ctx, span := o.tracer.Start(ctx, "collector.store")
	defer span.End()

	services := o.storage.Selected()
	results := make([]storage.Result, len(services))

	var wg sync.WaitGroup
	for i, svc := range services {
		i, svc := i, svc
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, svcSpan := o.tracer.Start(ctx, "collector.store."+svc.Designation())
			defer svcSpan.End()
			defer func() {
				if r := recover(); r != nil {
					results[i] = storage.Result{
						Designation: svc.Designation(),
						Records:     len(records),
						Err:         fmt.Errorf("panic in %s storage: %v", svc.Designation(), r),
						Failure:     storage.FailureUnexpected,
					}
					svcSpan.SetStatus(codes.Error, string(storage.FailureUnexpected))
				}
			}()

			results[i] = svc.BulkStoreData(ctx, records)
			if !results[i].OK() {
				svcSpan.RecordError(results[i].Err)
				svcSpan.SetStatus(codes.Error, string(results[i].Failure))
			}
		}()
	}
	wg.Wait()
	return results
}
