package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-collector/internal/mapper"
	"github.com/kjstillabower/weather-collector/internal/models"
)

// TextFileRepository keeps one batch per file as blank-line separated text blocks.
// AddAll replaces the file contents.
type TextFileRepository struct {
	path   string
	mapper mapper.EntityMapper[mapper.TextEntity]
	logger *zap.Logger
}

// NewTextFileRepository creates the parent directory of path if needed.
func NewTextFileRepository(path string, logger *zap.Logger) (*TextFileRepository, error) {
	if err := ensureParentDir(path); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TextFileRepository{path: path, mapper: mapper.TextMapper{}, logger: logger}, nil
}

// Path returns the file the repository writes.
func (r *TextFileRepository) Path() string { return r.path }

func (r *TextFileRepository) AddAll(ctx context.Context, records []models.WeatherRecord) error {
	blocks := make([]mapper.TextEntity, 0, len(records))
	for _, rec := range records {
		block, err := r.mapper.ToEntity(rec)
		if err != nil {
			return fmt.Errorf("map %s record: %w", rec.City, err)
		}
		blocks = append(blocks, block)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrFileWrite, err)
	}
	if err := writeFileAtomic(r.path, []byte(mapper.JoinTextBlocks(blocks))); err != nil {
		r.logger.Error("text file write failed", zap.String("path", r.path), zap.Error(err))
		return err
	}
	return nil
}

func (r *TextFileRepository) FindAll(_ context.Context, f Filter) ([]models.WeatherRecord, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileRead, err)
	}
	blocks := mapper.SplitTextBlocks(string(data))
	records := make([]models.WeatherRecord, 0, len(blocks))
	for _, block := range blocks {
		rec, err := r.mapper.ToDomain(block)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return filterRecords(records, f), nil
}

// JSONFileRepository keeps one batch per file as a JSON array.
// AddAll replaces the file contents.
type JSONFileRepository struct {
	path   string
	mapper mapper.EntityMapper[mapper.JSONEntity]
	logger *zap.Logger
}

// NewJSONFileRepository creates the parent directory of path if needed.
func NewJSONFileRepository(path string, logger *zap.Logger) (*JSONFileRepository, error) {
	if err := ensureParentDir(path); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONFileRepository{path: path, mapper: mapper.JSONMapper{}, logger: logger}, nil
}

// Path returns the file the repository writes.
func (r *JSONFileRepository) Path() string { return r.path }

func (r *JSONFileRepository) AddAll(ctx context.Context, records []models.WeatherRecord) error {
	entities := make([]mapper.JSONEntity, 0, len(records))
	for _, rec := range records {
		e, err := r.mapper.ToEntity(rec)
		if err != nil {
			return fmt.Errorf("map %s record: %w", rec.City, err)
		}
		entities = append(entities, e)
	}
	data, err := json.MarshalIndent(entities, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode json: %w", ErrFileWrite, err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrFileWrite, err)
	}
	if err := writeFileAtomic(r.path, data); err != nil {
		r.logger.Error("json file write failed", zap.String("path", r.path), zap.Error(err))
		return err
	}
	return nil
}

func (r *JSONFileRepository) FindAll(_ context.Context, f Filter) ([]models.WeatherRecord, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileRead, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []models.WeatherRecord{}, nil
	}
	var entities []mapper.JSONEntity
	if err := json.Unmarshal(data, &entities); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrFileRead, r.path, err)
	}
	records := make([]models.WeatherRecord, 0, len(entities))
	for _, e := range entities {
		rec, err := r.mapper.ToDomain(e)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return filterRecords(records, f), nil
}

func ensureParentDir(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrFileWrite)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: create directory for %s: %w", ErrFileWrite, path, err)
	}
	return nil
}

// writeFileAtomic writes to a temp file in the same directory and renames it over path.
func writeFileAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFileWrite, err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %w", ErrFileWrite, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrFileWrite, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: %w", ErrFileWrite, err)
	}
	return nil
}
