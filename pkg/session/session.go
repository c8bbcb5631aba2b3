package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrClosed is returned from operations on a finished session.
var ErrClosed = errors.New("session: closed")

// Session binds one unit of work to a single connection and, lazily, a
// single transaction. Callers pass it explicitly alongside the context;
// nothing about it is ambient or goroutine-local. A Session is not safe
// for concurrent use.
type Session struct {
	id     string
	db     *sql.DB
	conn   *sql.Conn
	tx     *sql.Tx
	logger *zap.Logger
	closed bool
}

// New creates a session over the given pool. No connection is taken until
// the first statement runs.
func New(db *sql.DB, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	return &Session{
		id:     id,
		db:     db,
		logger: logger.With(zap.String("session", id)),
	}
}

// ID returns the session's request identifier.
func (s *Session) ID() string { return s.id }

// Logger returns a logger tagged with the session id.
func (s *Session) Logger() *zap.Logger { return s.logger }

// Tx returns the session transaction, acquiring a connection and beginning
// the transaction on first use. Every statement in the session runs on
// this one transaction.
func (s *Session) Tx(ctx context.Context) (*sql.Tx, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.tx != nil {
		return s.tx, nil
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: acquire connection: %w", err)
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("session: begin transaction: %w", err)
	}
	s.conn = conn
	s.tx = tx
	return s.tx, nil
}

// Query runs a query on the session transaction.
func (s *Session) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	tx, err := s.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return tx.QueryContext(ctx, query, args...)
}

// Exec runs a statement on the session transaction.
func (s *Session) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	tx, err := s.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return tx.ExecContext(ctx, query, args...)
}

// Commit commits the transaction, if one was begun, and releases the
// connection. The session cannot be used afterwards.
func (s *Session) Commit() error {
	if s.closed {
		return ErrClosed
	}
	defer s.release()
	if s.tx == nil {
		return nil
	}
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("session: commit: %w", err)
	}
	return nil
}

// Rollback rolls back the transaction, if one was begun, and releases the
// connection. Safe to call after Commit.
func (s *Session) Rollback() error {
	if s.closed {
		return nil
	}
	defer s.release()
	if s.tx == nil {
		return nil
	}
	if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("session: rollback: %w", err)
	}
	return nil
}

// End finishes the session: commit on nil err, rollback otherwise. The
// returned error favors the caller's err over a rollback failure.
func (s *Session) End(err error) error {
	if err != nil {
		if rbErr := s.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	return s.Commit()
}

func (s *Session) release() {
	s.closed = true
	s.tx = nil
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}
