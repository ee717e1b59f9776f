package client

import (
	"context"
	"errors"
)

// ErrorCategory is a stable label for fetch failures in logs and metrics.
type ErrorCategory string

const (
	ErrorCategoryFetch      ErrorCategory = "fetch"
	ErrorCategoryParse      ErrorCategory = "parse"
	ErrorCategoryData       ErrorCategory = "data"
	ErrorCategoryUnexpected ErrorCategory = "unexpected"
)

// CategorizeError maps an error returned by a WeatherClient to its category.
// Context cancellation and deadlines count as fetch failures.
func CategorizeError(err error) ErrorCategory {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrFetch),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return ErrorCategoryFetch
	case errors.Is(err, ErrParse):
		return ErrorCategoryParse
	case errors.Is(err, ErrData):
		return ErrorCategoryData
	default:
		return ErrorCategoryUnexpected
	}
}
