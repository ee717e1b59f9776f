package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-collector/internal/database"
	"github.com/kjstillabower/weather-collector/internal/mapper"
	"github.com/kjstillabower/weather-collector/internal/models"
)

// WeatherRepositoryName is the name the weather table repository registers under.
const WeatherRepositoryName = "weather"

const weatherColumns = "timestamp, city, temperature, weather_type, sunrise, sunset"

// DatabaseRepository writes records to weather_table through an attached session.
type DatabaseRepository struct {
	mu      sync.RWMutex
	session database.Session
	dialect database.Dialect
	mapper  mapper.EntityMapper[mapper.Row]
	logger  *zap.Logger
}

// NewDatabaseRepository returns a repository that accepts sessions of the given dialect.
func NewDatabaseRepository(dialect database.Dialect, logger *zap.Logger) *DatabaseRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DatabaseRepository{
		dialect: dialect,
		mapper:  mapper.DatabaseMapper{},
		logger:  logger,
	}
}

// Name identifies the repository inside a Manager.
func (r *DatabaseRepository) Name() string {
	return WeatherRepositoryName
}

// SetSession attaches s for subsequent calls.
func (r *DatabaseRepository) SetSession(s database.Session) error {
	if s == nil {
		return fmt.Errorf("%w: nil session", ErrSessionNotSet)
	}
	if s.Dialect() != r.dialect {
		return fmt.Errorf("%w: got %s session, want %s", ErrInvalidSessionType, s.Dialect(), r.dialect)
	}
	r.mu.Lock()
	r.session = s
	r.mu.Unlock()
	return nil
}

// ClearSession detaches the current session, if any.
func (r *DatabaseRepository) ClearSession() {
	r.mu.Lock()
	r.session = nil
	r.mu.Unlock()
}

func (r *DatabaseRepository) currentSession() (database.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.session == nil {
		return nil, fmt.Errorf("%w: call SetSession before using the repository", ErrSessionNotSet)
	}
	return r.session, nil
}

// AddAll inserts the batch with a single statement. Nothing is committed here.
func (r *DatabaseRepository) AddAll(ctx context.Context, records []models.WeatherRecord) error {
	s, err := r.currentSession()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	rows := make([]mapper.Row, 0, len(records))
	for _, rec := range records {
		row, err := r.mapper.ToEntity(rec)
		if err != nil {
			return fmt.Errorf("map %s record: %w", rec.City, err)
		}
		rows = append(rows, row)
	}

	query, args := r.insertStatement(rows)
	if _, err := s.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("insert failed", zap.Int("records", len(rows)), zap.Error(err))
		return fmt.Errorf("%w: insert %d records: %w", ErrDatabase, len(rows), err)
	}
	r.logger.Debug("records inserted", zap.Int("records", len(rows)))
	return nil
}

func (r *DatabaseRepository) insertStatement(rows []mapper.Row) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO weather_table (" + weatherColumns + ") VALUES ")
	args := make([]any, 0, len(rows)*6)
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		values := row.Values()
		values[0] = r.dialect.EncodeTime(row.Timestamp)
		for j, v := range values {
			if j > 0 {
				b.WriteString(", ")
			}
			args = append(args, v)
			b.WriteString(r.dialect.Placeholder(len(args)))
		}
		b.WriteByte(')')
	}
	return b.String(), args
}

// FindAll reads records through the attached session, ordered by timestamp then city.
func (r *DatabaseRepository) FindAll(ctx context.Context, f Filter) ([]models.WeatherRecord, error) {
	s, err := r.currentSession()
	if err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if f.City != "" {
		args = append(args, f.City)
		where = append(where, "city = "+r.dialect.Placeholder(len(args)))
	}
	if !f.From.IsZero() {
		args = append(args, r.dialect.EncodeTime(f.From))
		where = append(where, "timestamp >= "+r.dialect.Placeholder(len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, r.dialect.EncodeTime(f.To))
		where = append(where, "timestamp < "+r.dialect.Placeholder(len(args)))
	}
	query := "SELECT " + weatherColumns + " FROM weather_table"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp, city"

	rows, err := s.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query weather_table: %w", ErrDatabase, err)
	}
	defer rows.Close()

	var out []models.WeatherRecord
	for rows.Next() {
		var (
			row mapper.Row
			ts  any
		)
		if err := rows.Scan(&ts, &row.City, &row.Temperature, &row.WeatherType, &row.Sunrise, &row.Sunset); err != nil {
			return nil, fmt.Errorf("%w: scan weather row: %w", ErrDatabase, err)
		}
		if row.Timestamp, err = database.DecodeTime(ts); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDatabase, err)
		}
		rec, err := r.mapper.ToDomain(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read weather rows: %w", ErrDatabase, err)
	}
	return out, nil
}
