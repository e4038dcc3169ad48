package session

import (
	"context"
)

// Session is a connection-bound unit of work produced by a Factory.
// While a Scope holds it, the Scope owns its lifetime: callers borrow it
// between Acquire and Release and must not keep it afterwards.
type Session interface {
	// ID returns the unique identifier assigned when the session was created
	ID() string
	// Close flushes pending work and releases the underlying connection
	Close(ctx context.Context) error
}

// Factory produces fresh sessions bound to a configured backend.
// NewSession may open a physical connection and fire connect hooks.
type Factory interface {
	NewSession(ctx context.Context) (Session, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context) (Session, error)

// NewSession calls f(ctx).
func (f FactoryFunc) NewSession(ctx context.Context) (Session, error) {
	return f(ctx)
}

// Pinger is implemented by sessions that can verify their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Observer receives scope lifecycle events. Implementations must not block.
type Observer interface {
	SessionOpened()
	SessionClosed()
	Reentered(depth int)
	UnbalancedRelease()
	AcquireFailed(err error)
}

type nopObserver struct{}

func (nopObserver) SessionOpened()      {}
func (nopObserver) SessionClosed()      {}
func (nopObserver) Reentered(int)       {}
func (nopObserver) UnbalancedRelease()  {}
func (nopObserver) AcquireFailed(error) {}
