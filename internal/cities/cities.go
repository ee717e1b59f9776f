// Package cities supplies the list of cities a collection run fetches.
package cities

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/weather-collector/internal/validation"
)

// ErrRetrieval wraps every failure to produce a city list.
var ErrRetrieval = errors.New("city list retrieval failed")

//go:embed default_cities.yaml
var defaultCitiesYAML []byte

// Source returns the cities for one run, in fetch order.
type Source interface {
	Cities(ctx context.Context) ([]string, error)
}

// StaticSource serves a fixed list.
type StaticSource struct {
	cities []string
}

// NewStaticSource validates and de-duplicates names up front; the first spelling wins.
func NewStaticSource(names []string) (*StaticSource, error) {
	cleaned, err := clean(names)
	if err != nil {
		return nil, err
	}
	return &StaticSource{cities: cleaned}, nil
}

func (s *StaticSource) Cities(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrieval, err)
	}
	out := make([]string, len(s.cities))
	copy(out, s.cities)
	return out, nil
}

// Default returns the embedded top-cities list.
func Default() (*StaticSource, error) {
	names, err := parseList(defaultCitiesYAML)
	if err != nil {
		return nil, err
	}
	return NewStaticSource(names)
}

// FileSource re-reads a YAML file of the form "cities: [...]" on every call,
// so edits take effect on the next scheduled run.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Path() string { return s.path }

func (s *FileSource) Cities(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrieval, err)
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrRetrieval, s.path, err)
	}
	names, err := parseList(data)
	if err != nil {
		return nil, err
	}
	return clean(names)
}

// New picks the source for the given configuration: a file when path is set,
// then an explicit list, then the embedded default.
func New(path string, list []string) (Source, error) {
	switch {
	case path != "":
		return NewFileSource(path), nil
	case len(list) > 0:
		return NewStaticSource(list)
	default:
		return Default()
	}
}

type listFile struct {
	Cities []string `yaml:"cities"`
}

func parseList(data []byte) ([]string, error) {
	var lf listFile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("%w: parse city list: %v", ErrRetrieval, err)
	}
	return lf.Cities, nil
}

func clean(names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: empty city list", ErrRetrieval)
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		city, err := validation.ValidateCity(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrRetrieval, name, err)
		}
		key := validation.NormalizeCity(city)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, city)
	}
	return out, nil
}
