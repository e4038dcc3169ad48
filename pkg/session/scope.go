package session

import (
	"context"

	"github.com/kasuganosora/sqlscope/pkg/api"
)

// State is the lifecycle state of a Scope.
type State int

const (
	StateClosed State = iota
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// Scope lends one shared Session to a chain of nested callers.
//
// The first Acquire creates the session; nested Acquire calls reuse it and
// bump a depth counter; the Release that balances the first Acquire closes
// it. Nested acquisition is logged as a warning with the call stack, and so
// is a Release on a scope that holds no session. Neither is an error.
//
// Invariant: depth > 0 implies an active session; no active session implies
// depth == 0.
//
// A Scope is meant for one sequential flow (one request, one job). It does
// no locking: two goroutines sharing a Scope share the same Session, and
// nothing here serializes their use of it.
type Scope struct {
	factory  Factory
	logger   api.Logger
	observer Observer

	active Session
	depth  int
}

// Option configures a Scope.
type Option func(*Scope)

// WithLogger sets the logger receiving misuse warnings and lifecycle events.
func WithLogger(logger api.Logger) Option {
	return func(s *Scope) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver sets the observer notified of lifecycle events.
func WithObserver(observer Observer) Option {
	return func(s *Scope) {
		if observer != nil {
			s.observer = observer
		}
	}
}

// NewScope creates a closed scope over factory.
func NewScope(factory Factory, opts ...Option) *Scope {
	s := &Scope{
		factory:  factory,
		logger:   api.NewNoOpLogger(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Acquire returns the scope's session, creating it on first use.
//
// Errors from the factory are returned as-is and leave the scope closed.
// If ctx is cancelled while the factory is working, a session it still
// produced is closed again and ctx.Err() is returned.
func (s *Scope) Acquire(ctx context.Context) (Session, error) {
	if s.active != nil {
		s.depth++
		api.WarnWithStack(s.logger, api.CaptureStack(1),
			"Re-entering database session (depth: %d), potential bug", s.depth)
		s.observer.Reentered(s.depth)
		return s.active, nil
	}

	if err := ctx.Err(); err != nil {
		s.observer.AcquireFailed(err)
		return nil, err
	}

	sess, err := s.factory.NewSession(ctx)
	if err != nil {
		s.observer.AcquireFailed(err)
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		if cerr := sess.Close(context.WithoutCancel(ctx)); cerr != nil {
			s.logger.Error("Failed to close session %s after cancelled acquire: %v", sess.ID(), cerr)
		}
		s.observer.AcquireFailed(err)
		return nil, err
	}

	s.active = sess
	s.depth = 0
	s.observer.SessionOpened()
	s.logger.Debug("Opened database session %s", sess.ID())
	return sess, nil
}

// Release gives back one level of acquisition. The session is closed only
// when the outermost holder releases it. A close error is returned, but the
// scope is closed either way and never closes the same session twice.
func (s *Scope) Release(ctx context.Context) error {
	if s.active == nil {
		api.WarnWithStack(s.logger, api.CaptureStack(1),
			"Closing database session that was never opened")
		s.observer.UnbalancedRelease()
		return nil
	}

	if s.depth > 0 {
		s.depth--
		return nil
	}

	sess := s.active
	s.active = nil
	s.observer.SessionClosed()

	if err := sess.Close(ctx); err != nil {
		s.logger.Error("Failed to close database session %s: %v", sess.ID(), err)
		return err
	}
	s.logger.Debug("Closed database session %s", sess.ID())
	return nil
}

// Do acquires the session, runs fn with it and releases it on every exit
// path, including panics and cancellation of ctx. The release runs on a
// context detached from ctx's cancellation. fn's error takes precedence
// over a release error.
func (s *Scope) Do(ctx context.Context, fn func(ctx context.Context, sess Session) error) (err error) {
	sess, err := s.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := s.Release(context.WithoutCancel(ctx)); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return fn(ctx, sess)
}

// State reports whether the scope currently holds a session.
func (s *Scope) State() State {
	if s.active != nil {
		return StateOpen
	}
	return StateClosed
}

// IsOpen reports whether the scope currently holds a session.
func (s *Scope) IsOpen() bool {
	return s.active != nil
}

// Depth returns the number of nested acquisitions beyond the first.
func (s *Scope) Depth() int {
	return s.depth
}

// Session returns the active session, or nil when the scope is closed.
func (s *Scope) Session() Session {
	return s.active
}
