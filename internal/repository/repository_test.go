package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/weather-collector/internal/database"
	"github.com/kjstillabower/weather-collector/internal/mapper"
	"github.com/kjstillabower/weather-collector/internal/models"
)

var ts = time.Date(2024, 2, 6, 21, 11, 30, 0, time.UTC)

func record(t *testing.T, at time.Time, city string, temp int, wt models.WeatherType) models.WeatherRecord {
	t.Helper()
	rec, err := models.NewWeatherRecord(at, city, temp, wt,
		models.TimeOfDay{Hour: 6, Minute: 33}, models.TimeOfDay{Hour: 17, Minute: 57})
	require.NoError(t, err)
	return rec
}

func openSession(t *testing.T) database.Session {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "weather.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))
	s, err := db.NewSession(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type postgresSession struct{ database.Session }

func (postgresSession) Dialect() database.Dialect { return database.DialectPostgres }

func TestDatabaseRepository_RequiresSession(t *testing.T) {
	ctx := context.Background()
	repo := NewDatabaseRepository(database.DialectSQLite, nil)

	assert.ErrorIs(t, repo.AddAll(ctx, []models.WeatherRecord{record(t, ts, "Tianjin", -3, models.WeatherClear)}), ErrSessionNotSet)
	_, err := repo.FindAll(ctx, Filter{})
	assert.ErrorIs(t, err, ErrSessionNotSet)
	assert.ErrorIs(t, repo.SetSession(nil), ErrSessionNotSet)
	assert.ErrorIs(t, repo.SetSession(postgresSession{}), ErrInvalidSessionType)
}

// TestDatabaseRepository_AddAllFindAll verifies a batch written through a session reads back
// unchanged and that filters narrow the result.
func TestDatabaseRepository_AddAllFindAll(t *testing.T) {
	ctx := context.Background()
	repo := NewDatabaseRepository(database.DialectSQLite, nil)
	require.NoError(t, repo.SetSession(openSession(t)))

	later := ts.Add(time.Hour)
	batch := []models.WeatherRecord{
		record(t, ts, "Tianjin", -3, models.WeatherClear),
		record(t, ts, "Rio de Janeiro", 31, models.WeatherThunderstorm),
		record(t, later, "Tianjin", -1, models.WeatherClouds),
	}
	require.NoError(t, repo.AddAll(ctx, batch))
	require.NoError(t, repo.AddAll(ctx, nil), "empty batch is a no-op")

	all, err := repo.FindAll(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].Equal(batch[1]), "ordered by timestamp then city: %+v", all[0])
	assert.True(t, all[1].Equal(batch[0]))
	assert.True(t, all[2].Equal(batch[2]))

	tianjin, err := repo.FindAll(ctx, Filter{City: "Tianjin"})
	require.NoError(t, err)
	assert.Len(t, tianjin, 2)

	window, err := repo.FindAll(ctx, Filter{From: later})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, -1, window[0].Temperature)

	before, err := repo.FindAll(ctx, Filter{To: later})
	require.NoError(t, err)
	assert.Len(t, before, 2)
}

// TestDatabaseRepository_DuplicateTimestampCity verifies a second row for the same
// (timestamp, city) is rejected as a database error.
func TestDatabaseRepository_DuplicateTimestampCity(t *testing.T) {
	ctx := context.Background()
	repo := NewDatabaseRepository(database.DialectSQLite, nil)
	require.NoError(t, repo.SetSession(openSession(t)))

	require.NoError(t, repo.AddAll(ctx, []models.WeatherRecord{record(t, ts, "Tianjin", -3, models.WeatherClear)}))
	err := repo.AddAll(ctx, []models.WeatherRecord{record(t, ts, "Tianjin", 4, models.WeatherRain)})
	assert.ErrorIs(t, err, ErrDatabase)
}

func TestDatabaseRepository_MappingError(t *testing.T) {
	repo := NewDatabaseRepository(database.DialectSQLite, nil)
	require.NoError(t, repo.SetSession(openSession(t)))

	bad := record(t, ts, "Tianjin", -3, models.WeatherClear)
	bad.WeatherType = "HAIL"
	assert.ErrorIs(t, repo.AddAll(context.Background(), []models.WeatherRecord{bad}), ErrMapping)
}

func TestDatabaseRepository_ClearSession(t *testing.T) {
	repo := NewDatabaseRepository(database.DialectSQLite, nil)
	require.NoError(t, repo.SetSession(openSession(t)))
	repo.ClearSession()
	_, err := repo.FindAll(context.Background(), Filter{})
	assert.ErrorIs(t, err, ErrSessionNotSet)
}

func TestDatabaseRepository_PostgresPlaceholders(t *testing.T) {
	repo := NewDatabaseRepository(database.DialectPostgres, nil)
	query, args := repo.insertStatement(nil)
	assert.Equal(t, "INSERT INTO weather_table (timestamp, city, temperature, weather_type, sunrise, sunset) VALUES ", query)
	assert.Empty(t, args)

	rec := record(t, ts, "Tianjin", -3, models.WeatherClear)
	row, err := repo.mapper.ToEntity(rec)
	require.NoError(t, err)
	query, args = repo.insertStatement([]mapper.Row{row, row})
	assert.Contains(t, query, "($1, $2, $3, $4, $5, $6), ($7, $8, $9, $10, $11, $12)")
	assert.Len(t, args, 12)
	assert.True(t, ts.Equal(args[0].(time.Time)))
}

func TestManager(t *testing.T) {
	repo := NewDatabaseRepository(database.DialectSQLite, nil)
	m := NewManager(repo)

	got, err := m.Get(WeatherRepositoryName)
	require.NoError(t, err)
	assert.Same(t, repo, got)

	_, err = m.Get("alerts")
	assert.ErrorIs(t, err, ErrRepositoryNotFound)
	assert.Equal(t, []string{WeatherRepositoryName}, m.Names())
	assert.ErrorIs(t, m.SetSessionForAll(nil), ErrInvalidSessionType)
	assert.ErrorIs(t, m.SetSessionForAll(postgresSession{}), ErrInvalidSessionType)

	require.NoError(t, m.SetSessionForAll(openSession(t)))
	_, err = repo.FindAll(context.Background(), Filter{})
	require.NoError(t, err)

	m.ClearSessionForAll()
	_, err = repo.FindAll(context.Background(), Filter{})
	assert.ErrorIs(t, err, ErrSessionNotSet)
}

func TestFileRepositories_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "nested", "out")

	text, err := NewTextFileRepository(filepath.Join(dir, "meteo.txt"), nil)
	require.NoError(t, err)
	js, err := NewJSONFileRepository(filepath.Join(dir, "meteo.json"), nil)
	require.NoError(t, err)
	_, err = os.Stat(dir)
	require.NoError(t, err, "constructor creates the parent directory")

	batch := []models.WeatherRecord{
		record(t, ts, "Tianjin", -3, models.WeatherClear),
		record(t, ts, "Rio de Janeiro", 31, models.WeatherMist),
	}
	for name, repo := range map[string]Repository{"text": text, "json": js} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, repo.AddAll(ctx, batch))
			got, err := repo.FindAll(ctx, Filter{})
			require.NoError(t, err)
			require.Len(t, got, 2)
			for i := range batch {
				want := batch[i]
				if name == "text" {
					want.Timestamp = want.Timestamp.Truncate(time.Minute)
				}
				assert.True(t, got[i].Equal(want), "record %d = %+v", i, got[i])
			}

			rio, err := repo.FindAll(ctx, Filter{City: "Rio de Janeiro"})
			require.NoError(t, err)
			assert.Len(t, rio, 1)

			require.NoError(t, repo.AddAll(ctx, batch[:1]))
			got, err = repo.FindAll(ctx, Filter{})
			require.NoError(t, err)
			assert.Len(t, got, 1, "AddAll replaces the file")
		})
	}
}

func TestFileRepositories_ReadErrors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	text, err := NewTextFileRepository(filepath.Join(dir, "meteo.txt"), nil)
	require.NoError(t, err)
	js, err := NewJSONFileRepository(filepath.Join(dir, "meteo.json"), nil)
	require.NoError(t, err)

	_, err = text.FindAll(ctx, Filter{})
	assert.ErrorIs(t, err, ErrFileRead, "missing text file")
	_, err = js.FindAll(ctx, Filter{})
	assert.ErrorIs(t, err, ErrFileRead, "missing json file")

	require.NoError(t, os.WriteFile(text.Path(), []byte("Date: 06.02.2024\nnonsense"), 0o644))
	_, err = text.FindAll(ctx, Filter{})
	assert.ErrorIs(t, err, ErrMapping)

	require.NoError(t, os.WriteFile(js.Path(), []byte("{not json"), 0o644))
	_, err = js.FindAll(ctx, Filter{})
	assert.ErrorIs(t, err, ErrFileRead)

	noTemperature := `[{"timestamp":"2024-02-06T21:11:30Z","city":"Tianjin","weather_type":"Ясно","sunrise":"06:33:00","sunset":"17:57:00"}]`
	require.NoError(t, os.WriteFile(js.Path(), []byte(noTemperature), 0o644))
	got, err := js.FindAll(ctx, Filter{})
	assert.ErrorIs(t, err, ErrMapping, "missing temperature")
	assert.Nil(t, got)

	require.NoError(t, os.WriteFile(text.Path(), nil, 0o644))
	got, err = text.FindAll(ctx, Filter{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

// TestFileRepositories_WriteErrors verifies mapping failures leave the file untouched
// and filesystem failures surface as ErrFileWrite.
func TestFileRepositories_WriteErrors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	text, err := NewTextFileRepository(filepath.Join(dir, "meteo.txt"), nil)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(text.Path(), []byte("previous"), 0o644))

	bad := record(t, ts, "Tianjin", -3, models.WeatherClear)
	bad.WeatherType = "HAIL"
	assert.ErrorIs(t, text.AddAll(ctx, []models.WeatherRecord{bad}), ErrMapping)
	data, err := os.ReadFile(text.Path())
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data))

	blocked := filepath.Join(dir, "blocked.json")
	require.NoError(t, os.Mkdir(blocked, 0o755))
	js, err := NewJSONFileRepository(blocked, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, js.AddAll(ctx, []models.WeatherRecord{record(t, ts, "Tianjin", -3, models.WeatherClear)}), ErrFileWrite)

	_, err = NewTextFileRepository("", nil)
	assert.ErrorIs(t, err, ErrFileWrite)
}
