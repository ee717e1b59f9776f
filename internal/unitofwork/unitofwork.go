// Package unitofwork scopes a database transaction around a batch of repository calls.
package unitofwork

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-collector/internal/database"
	"github.com/kjstillabower/weather-collector/internal/repository"
)

var (
	ErrRepositoryValidation = errors.New("repository validation failed")
	ErrNotActive            = errors.New("unit of work not active")
)

// State is the lifecycle position of a unit of work.
type State int

const (
	StateIdle State = iota
	StateActive
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	default:
		return "idle"
	}
}

// SessionFactory opens a new transactional session. *database.DB satisfies it.
type SessionFactory interface {
	NewSession(ctx context.Context) (database.Session, error)
}

// UnitOfWork binds one session to every managed repository for the duration of Do.
type UnitOfWork struct {
	scope sync.Mutex // held for the whole of Do

	mu      sync.Mutex
	state   State
	session database.Session

	repos    *repository.Manager
	sessions SessionFactory
	allowed  []string
	logger   *zap.Logger
}

// New returns a unit of work over repos. allowed lists the repository names the
// manager must contain, no more and no fewer.
func New(repos *repository.Manager, sessions SessionFactory, allowed []string, logger *zap.Logger) *UnitOfWork {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UnitOfWork{
		repos:    repos,
		sessions: sessions,
		allowed:  append([]string(nil), allowed...),
		logger:   logger,
	}
}

// Do opens a session, attaches it to every repository and runs fn. Whatever fn does,
// the session is rolled back (a no-op after Commit), detached and closed before Do returns.
// A panic in fn is re-raised after cleanup.
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	u.scope.Lock()
	defer u.scope.Unlock()

	if err := u.validate(); err != nil {
		u.logger.Error("repository validation failed", zap.Error(err))
		return err
	}

	session, err := u.sessions.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	if err := u.repos.SetSessionForAll(session); err != nil {
		u.repos.ClearSessionForAll()
		_ = session.Close()
		return err
	}

	u.mu.Lock()
	u.session = session
	u.state = StateActive
	u.mu.Unlock()

	defer func() {
		r := recover()
		if r != nil {
			u.logger.Error("unexpected panic inside unit of work", zap.Any("panic", r))
		} else if err != nil {
			u.logger.Error("unit of work failed", zap.Error(err))
		}

		if rbErr := session.Rollback(); rbErr != nil {
			u.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		u.repos.ClearSessionForAll()
		if cErr := session.Close(); cErr != nil {
			u.logger.Warn("session close failed", zap.Error(cErr))
		}

		u.mu.Lock()
		if u.state == StateActive {
			u.state = StateRolledBack
		}
		u.session = nil
		u.mu.Unlock()

		if r != nil {
			panic(r)
		}
	}()

	return fn(ctx)
}

// Commit makes the scope's writes durable.
func (u *UnitOfWork) Commit(context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state != StateActive {
		return fmt.Errorf("%w: commit in state %s", ErrNotActive, u.state)
	}
	if err := u.session.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", repository.ErrDatabase, err)
	}
	u.state = StateCommitted
	return nil
}

// WeatherRepository returns the weather table repository bound to the active session.
func (u *UnitOfWork) WeatherRepository() (repository.Repository, error) {
	u.mu.Lock()
	active := u.state == StateActive
	u.mu.Unlock()
	if !active {
		return nil, ErrNotActive
	}
	return u.repos.Get(repository.WeatherRepositoryName)
}

// State reports the position of the running scope, or the outcome of the last one.
func (u *UnitOfWork) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

func (u *UnitOfWork) validate() error {
	got := u.repos.Names()
	want := append([]string(nil), u.allowed...)
	sort.Strings(want)
	want = dedupe(want)

	if len(got) != len(want) {
		return fmt.Errorf("%w: registered %v, allowed %v", ErrRepositoryValidation, got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			return fmt.Errorf("%w: registered %v, allowed %v", ErrRepositoryValidation, got, want)
		}
	}
	return nil
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}
