package storage

import (
	"errors"
	"fmt"
	"slices"
)

// ErrInvalidDesignation is matched by every InvalidDesignationError.
var ErrInvalidDesignation = errors.New("invalid storage designation")

// InvalidDesignationError names the designation outside the allowed set.
type InvalidDesignationError struct {
	Designation string
}

func (e *InvalidDesignationError) Error() string {
	return fmt.Sprintf("invalid storage designation %q (allowed: %v)", e.Designation, Designations())
}

func (e *InvalidDesignationError) Is(target error) bool { return target == ErrInvalidDesignation }

// Manager holds every constructed storage service and the designations selected for use.
type Manager struct {
	all      []StorageService
	selected []string
}

// NewManager fails fast when selected names a designation other than db, text or json.
func NewManager(all []StorageService, selected []string) (*Manager, error) {
	allowed := Designations()
	for _, d := range selected {
		if !slices.Contains(allowed, d) {
			return nil, &InvalidDesignationError{Designation: d}
		}
	}
	return &Manager{
		all:      append([]StorageService(nil), all...),
		selected: append([]string(nil), selected...),
	}, nil
}

// Selected returns the services whose designation was selected, in the order they were registered.
func (m *Manager) Selected() []StorageService {
	out := make([]StorageService, 0, len(m.selected))
	for _, s := range m.all {
		if slices.Contains(m.selected, s.Designation()) {
			out = append(out, s)
		}
	}
	return out
}

// SelectedDesignations returns the configured selection.
func (m *Manager) SelectedDesignations() []string {
	return append([]string(nil), m.selected...)
}
