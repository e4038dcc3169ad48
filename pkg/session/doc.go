// Package session governs when a shared database session is open and who
// closes it.
//
// A Scope wraps a Factory. Code that needs "a database session" calls
// Scope.Do (or pairs Acquire with a deferred Release); nested calls through
// the same Scope get the same Session, and the session is closed when the
// outermost caller returns:
//
//	scope := session.NewScope(factory, session.WithLogger(logger))
//	err := scope.Do(ctx, func(ctx context.Context, sess session.Session) error {
//		return loadUser(ctx, scope, id) // nested scope.Do reuses sess
//	})
//
// The Scope is passed explicitly down the call chain; there is no ambient
// lookup through context values.
package session
