package badger

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/kasuganosora/sqlscope/pkg/api"
	"github.com/kasuganosora/sqlscope/pkg/datasource"
	"github.com/kasuganosora/sqlscope/pkg/session"
)

const backend = "badger"

// OpenHook runs once when the store is opened, before the first session is
// handed out. Returning an error closes the store again.
type OpenHook func(ctx context.Context, db *badger.DB) error

// Factory produces Sessions over one Badger store. The store is opened by
// the first NewSession and shared by all sessions of the factory.
type Factory struct {
	mu     sync.Mutex
	cfg    datasource.Config
	url    *datasource.URL
	opts   Options
	logger api.Logger
	hooks  []OpenHook
	db     *badger.DB
	closed bool

	opened atomic.Int64
}

// NewFactory validates cfg and returns an unopened factory. URLs have the
// form "badger:///path/to/dir" or "badger://" for an in-memory store.
func NewFactory(cfg *datasource.Config, logger api.Logger) (*Factory, error) {
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
	if u.Backend != backend {
		return nil, api.NewError(api.ErrCodeUnsupportedBackend,
			fmt.Sprintf("backend %q is not served by the badger factory", u.Backend), nil)
	}
	opts, err := parseOptions(u)
	if err != nil {
		return nil, err
	}

	return &Factory{
		cfg:    *cfg,
		url:    u,
		opts:   opts,
		logger: logger,
	}, nil
}

// OnConnect registers hook to run when the store is opened. Hooks
// registered after that never run.
func (f *Factory) OnConnect(hook OpenHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks = append(f.hooks, hook)
}

// store returns the open store, opening it on first use.
func (f *Factory) store(ctx context.Context) (*badger.DB, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, api.NewError(api.ErrCodeClosed, "session factory is closed", nil)
	}
	if f.db != nil {
		return f.db, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	db, err := badger.Open(f.opts.badgerOptions(storeLogger{logger: f.logger, debug: f.cfg.Debug}))
	if err != nil {
		return nil, api.NewConnectionError(fmt.Sprintf("open badger store %s", f.describe()), err)
	}
	for _, hook := range slices.Clone(f.hooks) {
		if err := hook(ctx, db); err != nil {
			db.Close()
			return nil, api.NewConnectionError("open hook", err)
		}
	}

	n := f.opened.Add(1)
	f.logger.Debug("Opened badger store %s (open #%d)", f.describe(), n)
	f.db = db
	return db, nil
}

func (f *Factory) describe() string {
	if f.opts.InMemory() {
		return "(memory)"
	}
	return f.opts.Dir
}

// Open starts a read-write transaction and wraps it in a new Session.
func (f *Factory) Open(ctx context.Context) (*Session, error) {
	db, err := f.store(ctx)
	if err != nil {
		return nil, err
	}
	s := newSession(f, db)
	if f.cfg.Debug {
		f.logger.Debug("Started transaction for session %s", s.id)
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

// Backend returns "badger".
func (f *Factory) Backend() string {
	return backend
}

// Options returns the store options parsed from the URL.
func (f *Factory) Options() Options {
	return f.opts
}

// Connections returns how many times the store has been opened: 0 or 1.
func (f *Factory) Connections() int64 {
	return f.opened.Load()
}

// Close closes the store. Close is idempotent.
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
	f.logger.Debug("Closed badger store %s", f.describe())
	return err
}

// Opener implements datasource.Opener for badger URLs.
type Opener struct{}

// NewOpener 创建 badger opener
func NewOpener() datasource.Opener {
	return Opener{}
}

// Schemes implements datasource.Opener.
func (Opener) Schemes() []string {
	return []string{backend}
}

// Open implements datasource.Opener.
func (Opener) Open(cfg *datasource.Config, logger api.Logger) (datasource.Factory, error) {
	f, err := NewFactory(cfg, logger)
	if err != nil {
		return nil, err
	}
	return f, nil
}
