package repository

import (
	"fmt"
	"sort"

	"github.com/kjstillabower/weather-collector/internal/database"
)

// SessionRepository is a database repository that works through an attached session.
type SessionRepository interface {
	Repository
	Name() string
	SetSession(s database.Session) error
	ClearSession()
}

// Manager attaches and detaches one session across every registered database repository.
type Manager struct {
	repos map[string]SessionRepository
}

// NewManager registers repos by name; a later repository replaces an earlier one with the same name.
func NewManager(repos ...SessionRepository) *Manager {
	m := &Manager{repos: make(map[string]SessionRepository, len(repos))}
	for _, r := range repos {
		m.repos[r.Name()] = r
	}
	return m
}

// Get returns the repository registered under name.
func (m *Manager) Get(name string) (SessionRepository, error) {
	r, ok := m.repos[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRepositoryNotFound, name)
	}
	return r, nil
}

// Names returns registered names in sorted order.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.repos))
	for name := range m.repos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every registered repository in name order.
func (m *Manager) All() []SessionRepository {
	out := make([]SessionRepository, 0, len(m.repos))
	for _, name := range m.Names() {
		out = append(out, m.repos[name])
	}
	return out
}

// SetSessionForAll attaches s to every repository, stopping at the first failure.
func (m *Manager) SetSessionForAll(s database.Session) error {
	if s == nil {
		return fmt.Errorf("%w: nil session", ErrInvalidSessionType)
	}
	for _, r := range m.All() {
		if err := r.SetSession(s); err != nil {
			return fmt.Errorf("attach session to %s: %w", r.Name(), err)
		}
	}
	return nil
}

// ClearSessionForAll detaches sessions from every repository.
func (m *Manager) ClearSessionForAll() {
	for _, r := range m.repos {
		r.ClearSession()
	}
}
