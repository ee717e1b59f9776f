// Package storage fans a batch of weather records out to the configured backends.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-collector/internal/models"
	"github.com/kjstillabower/weather-collector/internal/observability"
	"github.com/kjstillabower/weather-collector/internal/repository"
)

const (
	DesignationDatabase = "db"
	DesignationText     = "text"
	DesignationJSON     = "json"
)

// Designations lists every designation a Manager accepts.
func Designations() []string {
	return []string{DesignationDatabase, DesignationText, DesignationJSON}
}

// StorageService persists one batch to one backend. Failures are reported in the
// Result, never returned or raised.
type StorageService interface {
	Designation() string
	BulkStoreData(ctx context.Context, records []models.WeatherRecord) Result
}

// UnitOfWork is the transactional scope DatabaseService writes through.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
	WeatherRepository() (repository.Repository, error)
	Commit(ctx context.Context) error
}

// DatabaseService writes the batch inside a single unit-of-work scope and commits it.
type DatabaseService struct {
	uow         UnitOfWork
	designation string
	logger      *zap.Logger
}

func NewDatabaseService(uow UnitOfWork, designation string, logger *zap.Logger) *DatabaseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DatabaseService{uow: uow, designation: designation, logger: logger}
}

func (s *DatabaseService) Designation() string { return s.designation }

func (s *DatabaseService) BulkStoreData(ctx context.Context, records []models.WeatherRecord) Result {
	return store(ctx, s.designation, s.logger, records, func(ctx context.Context) error {
		return s.uow.Do(ctx, func(ctx context.Context) error {
			repo, err := s.uow.WeatherRepository()
			if err != nil {
				return err
			}
			if err := repo.AddAll(ctx, records); err != nil {
				return err
			}
			return s.uow.Commit(ctx)
		})
	})
}

// FileService writes the batch through a file repository.
type FileService struct {
	repo        repository.Repository
	designation string
	logger      *zap.Logger
}

func NewFileService(repo repository.Repository, designation string, logger *zap.Logger) *FileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileService{repo: repo, designation: designation, logger: logger}
}

func (s *FileService) Designation() string { return s.designation }

func (s *FileService) BulkStoreData(ctx context.Context, records []models.WeatherRecord) Result {
	return store(ctx, s.designation, s.logger, records, func(ctx context.Context) error {
		return s.repo.AddAll(ctx, records)
	})
}

// store runs write, converting errors and panics into a Result and recording metrics.
func store(ctx context.Context, designation string, logger *zap.Logger, records []models.WeatherRecord, write func(context.Context) error) (res Result) {
	label := strings.ToUpper(designation)
	logger = logger.With(zap.String("designation", designation), zap.Int("records", len(records)))
	logger.Info(label + " saving started")

	start := time.Now()
	res = Result{Designation: designation, Records: len(records)}
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("panic in %s storage: %v", designation, r)
			res.Failure = FailureUnexpected
		}
		res.Duration = time.Since(start)
		observability.StorageWritesTotal.WithLabelValues(designation, res.Status()).Inc()
		observability.StorageWriteDuration.WithLabelValues(designation).Observe(res.Duration.Seconds())
		if res.OK() {
			logger.Info(label+" saving finished", zap.Duration("duration", res.Duration))
			return
		}
		logger.Error(label+" saving failed: "+failureMessage(res.Failure),
			zap.String("failure", string(res.Failure)),
			zap.Error(res.Err),
		)
	}()

	if err := write(ctx); err != nil {
		res.Err = err
		res.Failure = Classify(err)
	}
	return res
}

func failureMessage(kind FailureKind) string {
	switch kind {
	case FailureValidation:
		return "repositories do not match the unit of work allow-list"
	case FailureSessionType:
		return "unit of work session does not match the repositories"
	case FailureSessionNotSet:
		return "repository used without a session"
	case FailureRepositoryNotFound:
		return "repository not registered with the manager"
	case FailureMapping:
		return "could not map records to entities"
	case FailureDatabase:
		return "database statement failed"
	case FailureFileWrite:
		return "could not write the file"
	default:
		return "unexpected error"
	}
}
