package sql

import (
	"context"
	"database/sql"
	"sync"

	"github.com/google/uuid"
	"github.com/kasuganosora/sqlscope/pkg/api"
	"gorm.io/gorm"
)

// Session is a unit of work bound to one dedicated pooled connection.
// Statements run inside the open transaction when there is one.
// A Session is not safe for concurrent use by multiple goroutines; the mutex
// only guards its own bookkeeping.
type Session struct {
	mu      sync.Mutex
	id      string
	factory *Factory
	conn    *sql.Conn
	tx      *sql.Tx
	orm     *gorm.DB
	closed  bool
}

func newSession(f *Factory, conn *sql.Conn) *Session {
	return &Session{
		id:      uuid.NewString(),
		factory: f,
		conn:    conn,
	}
}

// ID 返回会话ID
func (s *Session) ID() string {
	return s.id
}

// Dialect returns the dialect of the owning factory.
func (s *Session) Dialect() Dialect {
	return s.factory.dialect
}

// Conn returns the dedicated connection. Statements issued on it directly
// bypass the session transaction.
func (s *Session) Conn() *sql.Conn {
	return s.conn
}

// execer is satisfied by both *sql.Conn and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Session) target() (execer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errSessionClosed(s.id)
	}
	if s.tx != nil {
		return s.tx, nil
	}
	return s.conn, nil
}

func errSessionClosed(id string) error {
	return api.NewError(api.ErrCodeClosed, "session "+id+" is closed", nil)
}

func (s *Session) echo(query string, args []any) {
	if s.factory.cfg.Debug {
		s.factory.logger.Info("[%s] %s %v", s.id[:8], query, args)
	}
}

// ExecContext 执行语句
func (s *Session) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	t, err := s.target()
	if err != nil {
		return nil, err
	}
	s.echo(query, args)
	return t.ExecContext(ctx, query, args...)
}

// QueryContext 执行查询
func (s *Session) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	t, err := s.target()
	if err != nil {
		return nil, err
	}
	s.echo(query, args)
	return t.QueryContext(ctx, query, args...)
}

// QueryRowContext executes a query expected to return at most one row. On a
// closed session Scan fails with sql.ErrConnDone.
func (s *Session) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	t, err := s.target()
	if err != nil {
		return s.conn.QueryRowContext(ctx, query, args...)
	}
	s.echo(query, args)
	return t.QueryRowContext(ctx, query, args...)
}

// ==================== 事务管理 ====================

// Begin starts a transaction on the session's connection. Nested
// transactions are not supported.
func (s *Session) Begin(ctx context.Context, opts *sql.TxOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errSessionClosed(s.id)
	}
	if s.tx != nil {
		return api.NewError(api.ErrCodeTransaction, "nested transactions are not supported", nil)
	}

	tx, err := s.conn.BeginTx(ctx, opts)
	if err != nil {
		return api.NewError(api.ErrCodeTransaction, "begin transaction", err)
	}
	s.tx = tx
	if s.factory.cfg.Debug {
		s.factory.logger.Info("[%s] BEGIN", s.id[:8])
	}
	return nil
}

// Commit 提交事务
func (s *Session) Commit(ctx context.Context) error {
	tx, err := s.takeTx()
	if err != nil {
		return err
	}
	if s.factory.cfg.Debug {
		s.factory.logger.Info("[%s] COMMIT", s.id[:8])
	}
	if err := tx.Commit(); err != nil {
		return api.NewError(api.ErrCodeTransaction, "commit transaction", err)
	}
	return nil
}

// Rollback 回滚事务
func (s *Session) Rollback(ctx context.Context) error {
	tx, err := s.takeTx()
	if err != nil {
		return err
	}
	if s.factory.cfg.Debug {
		s.factory.logger.Info("[%s] ROLLBACK", s.id[:8])
	}
	if err := tx.Rollback(); err != nil {
		return api.NewError(api.ErrCodeTransaction, "rollback transaction", err)
	}
	return nil
}

func (s *Session) takeTx() (*sql.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errSessionClosed(s.id)
	}
	if s.tx == nil {
		return nil, api.NewError(api.ErrCodeTransaction, "no transaction in progress", nil)
	}
	tx := s.tx
	s.tx = nil
	return tx, nil
}

// InTx reports whether a transaction is open.
func (s *Session) InTx() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx != nil
}

// InTransaction runs fn inside a transaction, committing when fn returns nil
// and rolling back otherwise. A panic in fn rolls back and re-panics.
func (s *Session) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := s.Begin(ctx, nil); err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = s.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
	}()

	if err := fn(ctx); err != nil {
		if rbErr := s.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			s.factory.logger.Error("Rollback after error failed: %v", rbErr)
		}
		return err
	}
	return s.Commit(ctx)
}

// Ping verifies the connection is alive.
func (s *Session) Ping(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return errSessionClosed(s.id)
	}
	if err := s.conn.PingContext(ctx); err != nil {
		return api.NewConnectionError("ping", err)
	}
	return nil
}

// Close rolls back an uncommitted transaction, logging a warning, and
// returns the connection to the pool. Close is idempotent.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	tx := s.tx
	s.tx = nil
	s.orm = nil
	s.mu.Unlock()

	var rbErr error
	if tx != nil {
		s.factory.logger.Warn("Rolling back uncommitted transaction of session %s", s.id)
		if err := tx.Rollback(); err != nil {
			rbErr = api.NewError(api.ErrCodeTransaction, "rollback on close", err)
		}
	}

	if err := s.conn.Close(); err != nil {
		return api.NewConnectionError("return connection to pool", err)
	}
	if s.factory.cfg.Debug {
		s.factory.logger.Debug("Connection checked in for session %s", s.id)
	}
	return rbErr
}
