package database

import (
	"context"
	"database/sql"
	"errors"
	"sync"
)

// ErrSessionClosed is returned by operations on a closed session.
var ErrSessionClosed = errors.New("session closed")

// Session is one transaction's view of the database.
type Session interface {
	Dialect() Dialect
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	Commit() error
	// Rollback is a no-op once the transaction has finished.
	Rollback() error
	// Close rolls back anything uncommitted. Safe to call more than once.
	Close() error
}

type txSession struct {
	mu      sync.Mutex
	tx      *sql.Tx
	dialect Dialect
	closed  bool
}

func (s *txSession) Dialect() Dialect { return s.dialect }

func (s *txSession) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if s.isClosed() {
		return nil, ErrSessionClosed
	}
	return s.tx.ExecContext(ctx, query, args...)
}

func (s *txSession) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if s.isClosed() {
		return nil, ErrSessionClosed
	}
	return s.tx.QueryContext(ctx, query, args...)
}

func (s *txSession) Commit() error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	return s.tx.Commit()
}

func (s *txSession) Rollback() error {
	if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

func (s *txSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.Rollback()
}

func (s *txSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
