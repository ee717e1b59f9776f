package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/weather-collector/internal/database"
	"github.com/kjstillabower/weather-collector/internal/models"
	"github.com/kjstillabower/weather-collector/internal/repository"
	"github.com/kjstillabower/weather-collector/internal/unitofwork"
)

func batch(t *testing.T) []models.WeatherRecord {
	t.Helper()
	ts := time.Date(2024, 2, 6, 21, 11, 30, 0, time.UTC)
	var out []models.WeatherRecord
	for _, city := range []string{"City1", "City2"} {
		rec, err := models.NewWeatherRecord(ts, city, -3, models.WeatherClear,
			models.TimeOfDay{Hour: 6, Minute: 33}, models.TimeOfDay{Hour: 17, Minute: 57})
		require.NoError(t, err)
		out = append(out, rec)
	}
	return out
}

type stubRepo struct {
	err   error
	panic any
	got   []models.WeatherRecord
}

func (r *stubRepo) AddAll(_ context.Context, records []models.WeatherRecord) error {
	if r.panic != nil {
		panic(r.panic)
	}
	r.got = records
	return r.err
}

func (r *stubRepo) FindAll(context.Context, repository.Filter) ([]models.WeatherRecord, error) {
	return r.got, nil
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want FailureKind
	}{
		{nil, FailureNone},
		{fmt.Errorf("wrap: %w", unitofwork.ErrRepositoryValidation), FailureValidation},
		{repository.ErrInvalidSessionType, FailureSessionType},
		{repository.ErrSessionNotSet, FailureSessionNotSet},
		{repository.ErrRepositoryNotFound, FailureRepositoryNotFound},
		{fmt.Errorf("map: %w", repository.ErrMapping), FailureMapping},
		{fmt.Errorf("%w: unique", repository.ErrDatabase), FailureDatabase},
		{repository.ErrFileWrite, FailureFileWrite},
		{errors.New("disk on fire"), FailureUnexpected},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "Classify(%v)", tt.err)
	}
}

func TestFileService(t *testing.T) {
	ctx := context.Background()
	records := batch(t)

	repo := &stubRepo{}
	res := NewFileService(repo, DesignationText, nil).BulkStoreData(ctx, records)
	assert.True(t, res.OK())
	assert.Equal(t, "ok", res.Status())
	assert.Equal(t, DesignationText, res.Designation)
	assert.Equal(t, 2, res.Records)
	assert.Len(t, repo.got, 2)

	res = NewFileService(&stubRepo{err: fmt.Errorf("%w: disk full", repository.ErrFileWrite)}, DesignationJSON, nil).BulkStoreData(ctx, records)
	assert.False(t, res.OK())
	assert.Equal(t, FailureFileWrite, res.Failure)
	assert.ErrorIs(t, res.Err, repository.ErrFileWrite)
}

// TestFileService_PanicBecomesResult verifies a panicking repository yields an unexpected failure.
func TestFileService_PanicBecomesResult(t *testing.T) {
	res := NewFileService(&stubRepo{panic: "nil map"}, DesignationJSON, nil).BulkStoreData(context.Background(), batch(t))
	assert.Equal(t, FailureUnexpected, res.Failure)
	assert.Error(t, res.Err)
}

func newUnitOfWork(t *testing.T) (*unitofwork.UnitOfWork, *repository.Manager) {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "weather.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))
	repos := repository.NewManager(repository.NewDatabaseRepository(db.Dialect(), nil))
	return unitofwork.New(repos, db, []string{repository.WeatherRepositoryName}, nil), repos
}

// TestDatabaseService_CommitsAndRejectsDuplicates verifies a batch is committed once and a
// second identical batch fails as a database error without panicking.
func TestDatabaseService_CommitsAndRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	uow, _ := newUnitOfWork(t)
	svc := NewDatabaseService(uow, DesignationDatabase, nil)

	res := svc.BulkStoreData(ctx, batch(t))
	require.True(t, res.OK(), "first batch: %v", res.Err)

	res = svc.BulkStoreData(ctx, batch(t))
	assert.Equal(t, FailureDatabase, res.Failure)

	var stored []models.WeatherRecord
	require.NoError(t, uow.Do(ctx, func(ctx context.Context) error {
		repo, err := uow.WeatherRepository()
		if err != nil {
			return err
		}
		stored, err = repo.FindAll(ctx, repository.Filter{})
		return err
	}))
	assert.Len(t, stored, 2)
}

func TestDatabaseService_ValidationFailure(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "weather.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repos := repository.NewManager(repository.NewDatabaseRepository(db.Dialect(), nil))
	uow := unitofwork.New(repos, db, []string{"alerts"}, nil)

	res := NewDatabaseService(uow, DesignationDatabase, nil).BulkStoreData(ctx, batch(t))
	assert.Equal(t, FailureValidation, res.Failure)
}

type stubUoW struct {
	repoErr error
}

func (u stubUoW) Do(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) }
func (u stubUoW) WeatherRepository() (repository.Repository, error) {
	if u.repoErr != nil {
		return nil, u.repoErr
	}
	return &stubRepo{}, nil
}
func (u stubUoW) Commit(context.Context) error { return nil }

func TestDatabaseService_RepositoryNotFound(t *testing.T) {
	uow := stubUoW{repoErr: fmt.Errorf("%w: weather", repository.ErrRepositoryNotFound)}
	res := NewDatabaseService(uow, DesignationDatabase, nil).BulkStoreData(context.Background(), batch(t))
	assert.Equal(t, FailureRepositoryNotFound, res.Failure)
}

type namedService struct{ name string }

func (s namedService) Designation() string { return s.name }
func (s namedService) BulkStoreData(context.Context, []models.WeatherRecord) Result {
	return Result{Designation: s.name}
}

func TestNewManager_InvalidDesignation(t *testing.T) {
	_, err := NewManager(nil, []string{"db", "s3"})
	require.ErrorIs(t, err, ErrInvalidDesignation)
	var de *InvalidDesignationError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "s3", de.Designation)
}

// TestManager_SelectedPreservesRegistrationOrder verifies Selected filters by designation
// and keeps the order services were registered in, not the selection order.
func TestManager_SelectedPreservesRegistrationOrder(t *testing.T) {
	all := []StorageService{namedService{"db"}, namedService{"text"}, namedService{"json"}}

	m, err := NewManager(all, []string{"json", "db"})
	require.NoError(t, err)
	var got []string
	for _, s := range m.Selected() {
		got = append(got, s.Designation())
	}
	assert.Equal(t, []string{"db", "json"}, got)
	assert.Equal(t, []string{"json", "db"}, m.SelectedDesignations())

	m, err = NewManager(all, nil)
	require.NoError(t, err)
	assert.Empty(t, m.Selected())
}
