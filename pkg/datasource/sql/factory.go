package sql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/kasuganosora/sqlscope/pkg/api"
	"github.com/kasuganosora/sqlscope/pkg/datasource"
	"github.com/kasuganosora/sqlscope/pkg/session"
)

// Factory produces Sessions over a database/sql connection pool. The pool
// is opened lazily by the first NewSession; configuring a Factory never
// dials. A Factory is safe for concurrent use.
type Factory struct {
	mu        sync.RWMutex
	cfg       datasource.Config
	url       *datasource.URL
	dialect   Dialect
	connector driver.Connector
	logger    api.Logger
	hooks     []ConnectHook
	db        *sql.DB
	closed    bool

	connections atomic.Int64
}

// NewFactory validates cfg against dialect and returns an unconnected
// factory. A malformed URL, a scheme the dialect does not serve or a DSN the
// driver rejects fail with a configuration error.
func NewFactory(cfg *datasource.Config, dialect Dialect, logger api.Logger) (*Factory, error) {
	if cfg == nil {
		return nil, api.NewConfigurationError("database config is nil", nil)
	}
	if logger == nil {
		logger = api.NewNoOpLogger()
	}

	u, err := datasource.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(dialect.Schemes(), u.Backend) {
		return nil, api.NewError(api.ErrCodeUnsupportedBackend,
			fmt.Sprintf("backend %q is not served by the %s dialect", u.Backend, dialect.DriverName()), nil)
	}

	pool := cfg.Pool.WithDefaults()
	if tuner, ok := dialect.(PoolTuner); ok {
		pool = tuner.TunePool(u, pool)
	}

	dsn, err := dialect.BuildDSN(u, pool)
	if err != nil {
		if api.IsConfigurationError(err) {
			return nil, err
		}
		return nil, api.NewConfigurationError(fmt.Sprintf("invalid %s url %s", u.Backend, u.Redacted()), err)
	}

	connector, err := newConnector(dialect.DriverName(), dsn)
	if err != nil {
		return nil, api.NewConfigurationError(fmt.Sprintf("invalid %s url %s", u.Backend, u.Redacted()), err)
	}

	resolved := *cfg
	resolved.Pool = pool

	f := &Factory{
		cfg:       resolved,
		url:       u,
		dialect:   dialect,
		connector: connector,
		logger:    logger,
	}
	if stmts := dialect.InitStatements(); len(stmts) > 0 {
		f.hooks = append(f.hooks, execStatements(stmts))
	}
	return f, nil
}

// execStatements returns a hook running stmts in order.
func execStatements(stmts []string) ConnectHook {
	return func(ctx context.Context, conn *PhysicalConn) error {
		for _, stmt := range stmts {
			if err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("%s: %w", stmt, err)
			}
		}
		return nil
	}
}

// OnConnect registers hook to run on each new physical connection. Hooks
// run in registration order after the dialect's init statements and apply
// to connections dialed after registration.
func (f *Factory) OnConnect(hook ConnectHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks = append(f.hooks, hook)
}

func (f *Factory) onPhysicalConnect(ctx context.Context, conn *PhysicalConn) error {
	f.mu.RLock()
	hooks := slices.Clone(f.hooks)
	f.mu.RUnlock()

	n := f.connections.Add(1)
	f.logger.Debug("Connected to database %s (connection #%d)", f.url.Redacted(), n)

	for _, hook := range hooks {
		if err := hook(ctx, conn); err != nil {
			return fmt.Errorf("connect hook: %w", err)
		}
	}
	return nil
}

// pool returns the connection pool, opening it on first use.
func (f *Factory) pool() (*sql.DB, error) {
	f.mu.RLock()
	db, closed := f.db, f.closed
	f.mu.RUnlock()
	if closed {
		return nil, api.NewError(api.ErrCodeClosed, "session factory is closed", nil)
	}
	if db != nil {
		return db, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, api.NewError(api.ErrCodeClosed, "session factory is closed", nil)
	}
	if f.db != nil {
		return f.db, nil
	}

	db = sql.OpenDB(&hookedConnector{
		inner:     f.connector,
		backend:   f.url.Backend,
		onConnect: f.onPhysicalConnect,
	})
	pool := f.cfg.Pool
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	f.db = db
	if f.cfg.Debug {
		f.logger.Debug("Opened %s connection pool (max_open=%d, max_idle=%d)",
			f.url.Backend, pool.MaxOpenConns, pool.MaxIdleConns)
	}
	return db, nil
}

// Open checks a dedicated connection out of the pool and wraps it in a new
// Session. Unreachable backends and failing connect hooks produce a
// connection error.
func (f *Factory) Open(ctx context.Context) (*Session, error) {
	db, err := f.pool()
	if err != nil {
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, f.cfg.Pool.ConnectTimeout)
	defer cancel()

	conn, err := db.Conn(connectCtx)
	if err != nil {
		return nil, api.NewConnectionError(fmt.Sprintf("connect to %s", f.url.Redacted()), err)
	}

	s := newSession(f, conn)
	if f.cfg.Debug {
		f.logger.Debug("Connection checked out for session %s", s.id)
	}
	return s, nil
}

// NewSession implements session.Factory.
func (f *Factory) NewSession(ctx context.Context) (session.Session, error) {
	s, err := f.Open(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Backend returns the URL backend, e.g. "sqlite".
func (f *Factory) Backend() string {
	return f.url.Backend
}

// Dialect returns the factory's dialect.
func (f *Factory) Dialect() Dialect {
	return f.dialect
}

// Config returns the resolved configuration, pool defaults applied.
func (f *Factory) Config() datasource.Config {
	return f.cfg
}

// Connections returns how many physical connections have been dialed.
func (f *Factory) Connections() int64 {
	return f.connections.Load()
}

// Stats returns pool statistics; zero before the pool is opened.
func (f *Factory) Stats() sql.DBStats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.db == nil {
		return sql.DBStats{}
	}
	return f.db.Stats()
}

// Close closes the pool; NewSession fails afterwards. Close is idempotent.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	if f.db == nil {
		return nil
	}
	err := f.db.Close()
	f.db = nil
	if f.cfg.Debug {
		f.logger.Debug("Closed %s connection pool", f.url.Backend)
	}
	return err
}

// Opener adapts a Dialect to datasource.Opener.
type Opener struct {
	Dialect Dialect
}

// Schemes implements datasource.Opener.
func (o Opener) Schemes() []string {
	return o.Dialect.Schemes()
}

// Open implements datasource.Opener.
func (o Opener) Open(cfg *datasource.Config, logger api.Logger) (datasource.Factory, error) {
	f, err := NewFactory(cfg, o.Dialect, logger)
	if err != nil {
		return nil, err
	}
	return f, nil
}
