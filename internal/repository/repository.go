package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kjstillabower/weather-collector/internal/mapper"
	"github.com/kjstillabower/weather-collector/internal/models"
)

var (
	ErrSessionNotSet      = errors.New("session not set")
	ErrInvalidSessionType = errors.New("invalid session type")
	ErrRepositoryNotFound = errors.New("repository not found")
	ErrDatabase           = errors.New("database error")
	ErrFileWrite          = errors.New("file write error")
	ErrFileRead           = errors.New("file read error")

	// ErrMapping is the mapper sentinel, re-exported for callers that only import repository.
	ErrMapping = mapper.ErrMapping
)

// Repository persists and reads back weather records.
type Repository interface {
	AddAll(ctx context.Context, records []models.WeatherRecord) error
	FindAll(ctx context.Context, filter Filter) ([]models.WeatherRecord, error)
}

// Filter narrows FindAll. Zero fields match everything; From is inclusive and To exclusive.
type Filter struct {
	City string
	From time.Time
	To   time.Time
}

// Match reports whether rec passes the filter.
func (f Filter) Match(rec models.WeatherRecord) bool {
	if f.City != "" && rec.City != f.City {
		return false
	}
	if !f.From.IsZero() && rec.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !rec.Timestamp.Before(f.To) {
		return false
	}
	return true
}

func filterRecords(records []models.WeatherRecord, f Filter) []models.WeatherRecord {
	out := make([]models.WeatherRecord, 0, len(records))
	for _, rec := range records {
		if f.Match(rec) {
			out = append(out, rec)
		}
	}
	return out
}
