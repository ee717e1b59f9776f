package storage

import (
	"errors"
	"time"

	"github.com/kjstillabower/weather-collector/internal/repository"
	"github.com/kjstillabower/weather-collector/internal/unitofwork"
)

// FailureKind classifies why a storage batch failed.
type FailureKind string

const (
	FailureNone               FailureKind = ""
	FailureValidation         FailureKind = "validation"
	FailureSessionType        FailureKind = "session_type"
	FailureSessionNotSet      FailureKind = "session_not_set"
	FailureRepositoryNotFound FailureKind = "repository_not_found"
	FailureMapping            FailureKind = "mapping"
	FailureDatabase           FailureKind = "database"
	FailureFileWrite          FailureKind = "file_write"
	FailureUnexpected         FailureKind = "unexpected"
)

// Result is the outcome of one BulkStoreData call.
type Result struct {
	Designation string
	Records     int
	Err         error
	Failure     FailureKind
	Duration    time.Duration
}

// OK reports whether the batch was stored.
func (r Result) OK() bool {
	return r.Err == nil
}

// Status is the metrics label for the result: "ok" or the failure kind.
func (r Result) Status() string {
	if r.OK() {
		return "ok"
	}
	return string(r.Failure)
}

// Classify maps an error from the repository layer to a FailureKind.
func Classify(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, unitofwork.ErrRepositoryValidation):
		return FailureValidation
	case errors.Is(err, repository.ErrInvalidSessionType):
		return FailureSessionType
	case errors.Is(err, repository.ErrSessionNotSet):
		return FailureSessionNotSet
	case errors.Is(err, repository.ErrRepositoryNotFound):
		return FailureRepositoryNotFound
	case errors.Is(err, repository.ErrMapping):
		return FailureMapping
	case errors.Is(err, repository.ErrDatabase):
		return FailureDatabase
	case errors.Is(err, repository.ErrFileWrite):
		return FailureFileWrite
	default:
		return FailureUnexpected
	}
}
