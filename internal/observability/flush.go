package observability

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// FlushTelemetry flushes spans, pushes metrics when a gateway is configured, and syncs logs.
// Call during shutdown after the last run has finished.
func FlushTelemetry(ctx context.Context, logger *zap.Logger, shutdownTracing ShutdownFunc, pushURL, job string) error {
	var errs []error
	if shutdownTracing != nil {
		if err := shutdownTracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush spans: %w", err))
		}
	}
	if err := PushMetrics(ctx, pushURL, job); err != nil {
		errs = append(errs, err)
	}
	if logger != nil {
		// Sync on stderr returns EINVAL on some platforms; not worth failing shutdown for.
		_ = logger.Sync()
	}
	return errors.Join(errs...)
}
