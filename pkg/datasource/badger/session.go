package badger

import (
	"context"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/kasuganosora/sqlscope/pkg/api"
)

// ErrKeyNotFound is returned by Get for absent keys.
var ErrKeyNotFound = badger.ErrKeyNotFound

// Session is a unit of work over one read-write Badger transaction. Writes
// become visible to other sessions on Commit; Close discards them.
type Session struct {
	mu      sync.Mutex
	id      string
	factory *Factory
	db      *badger.DB
	txn     *badger.Txn
	dirty   bool
	closed  bool
}

func newSession(f *Factory, db *badger.DB) *Session {
	return &Session{
		id:      uuid.NewString(),
		factory: f,
		db:      db,
		txn:     db.NewTransaction(true),
	}
}

// ID 返回会话ID
func (s *Session) ID() string {
	return s.id
}

func (s *Session) errClosed() error {
	return api.NewError(api.ErrCodeClosed, "session "+s.id+" is closed", nil)
}

// Get returns a copy of the value stored under key.
func (s *Session) Get(ctx context.Context, key []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, s.errClosed()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	item, err := s.txn.Get(key)
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// Set stores value under key.
func (s *Session) Set(ctx context.Context, key, value []byte) error {
	return s.write(ctx, badger.NewEntry(key, value))
}

// SetWithTTL stores value under key, expiring after ttl.
func (s *Session) SetWithTTL(ctx context.Context, key, value []byte, ttl time.Duration) error {
	return s.write(ctx, badger.NewEntry(key, value).WithTTL(ttl))
}

func (s *Session) write(ctx context.Context, e *badger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.errClosed()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.txn.SetEntry(e); err != nil {
		return txnError("set", err)
	}
	s.dirty = true
	return nil
}

// Delete removes key.
func (s *Session) Delete(ctx context.Context, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.errClosed()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.txn.Delete(key); err != nil {
		return txnError("delete", err)
	}
	s.dirty = true
	return nil
}

// Keys returns the keys starting with prefix, in order.
func (s *Session) Keys(ctx context.Context, prefix []byte) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, s.errClosed()
	}

	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := s.txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys, nil
}

// Commit makes the session's writes durable and starts a fresh transaction.
// A conflict with a concurrently committed session surfaces as a
// transaction error wrapping badger.ErrConflict.
func (s *Session) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.errClosed()
	}

	err := s.txn.Commit()
	s.txn = s.db.NewTransaction(true)
	s.dirty = false
	if err != nil {
		return txnError("commit", err)
	}
	if s.factory.cfg.Debug {
		s.factory.logger.Debug("Committed session %s", s.id)
	}
	return nil
}

// Rollback discards pending writes and starts a fresh transaction.
func (s *Session) Rollback(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.errClosed()
	}
	s.txn.Discard()
	s.txn = s.db.NewTransaction(true)
	s.dirty = false
	return nil
}

// Ping reports whether the store is still open.
func (s *Session) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.errClosed()
	}
	if s.db.IsClosed() {
		return api.NewConnectionError("badger store is closed", nil)
	}
	return nil
}

// Close discards uncommitted writes, logging a warning when there are any.
// Close is idempotent.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.dirty {
		s.factory.logger.Warn("Discarding uncommitted writes of session %s", s.id)
	}
	s.txn.Discard()
	return nil
}

func txnError(op string, err error) error {
	return api.NewError(api.ErrCodeTransaction, op, err)
}
