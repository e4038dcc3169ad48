// Package database wires configuration, a backend session factory, logging
// and metrics together and hands out session scopes.
//
//	db, err := database.Open(config.LoadConfigOrDefault())
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//
//	err = db.NewScope().Do(ctx, func(ctx context.Context, s session.Session) error {
//		_, err := s.(*sql.Session).ExecContext(ctx, "DELETE FROM jobs WHERE done")
//		return err
//	})
package database

import (
	"context"
	"fmt"
	"os"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/kasuganosora/sqlscope/pkg/api"
	"github.com/kasuganosora/sqlscope/pkg/config"
	"github.com/kasuganosora/sqlscope/pkg/datasource"
	"github.com/kasuganosora/sqlscope/pkg/datasource/badger"
	sqlcommon "github.com/kasuganosora/sqlscope/pkg/datasource/sql"
	"github.com/kasuganosora/sqlscope/pkg/monitor"
	"github.com/kasuganosora/sqlscope/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
)

// DB 数据库入口, 持有会话工厂
type DB struct {
	cfg      *config.Config
	factory  datasource.Factory
	logger   api.Logger
	metrics  *monitor.ScopeMetrics
	registry *datasource.Registry
}

// Option 配置 Open
type Option func(*options)

type options struct {
	logger     api.Logger
	registry   *datasource.Registry
	registerer prometheus.Registerer
}

// WithLogger 使用指定的日志器, 替代按配置创建的日志器
func WithLogger(logger api.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRegistry 使用指定的后端注册表
func WithRegistry(registry *datasource.Registry) Option {
	return func(o *options) {
		o.registry = registry
	}
}

// WithMetrics registers scope metrics with reg regardless of the metrics
// section of the config.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// Open configures the backend named by cfg.Database.URL. Nothing is dialed
// until the first session is acquired.
func Open(cfg *config.Config, opts ...Option) (*DB, error) {
	if cfg == nil {
		return nil, api.NewConfigurationError("config is nil", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = api.NewLogger(cfg.Log.LogLevel(), cfg.Log.Format, os.Stdout)
	}
	if o.registry == nil {
		o.registry = DefaultRegistry()
	}
	if o.registerer == nil && cfg.Metrics.Enabled {
		o.registerer = prometheus.DefaultRegisterer
	}

	db := &DB{
		cfg:      cfg,
		logger:   o.logger,
		registry: o.registry,
	}

	if o.registerer != nil {
		metrics, err := monitor.NewScopeMetrics(o.registerer, cfg.Metrics.Namespace)
		if err != nil {
			return nil, api.WrapError(err, api.ErrCodeInternal, "register metrics")
		}
		db.metrics = metrics
	}

	factory, err := o.registry.Open(cfg.Database.DataSource(), db.logger)
	if err != nil {
		return nil, err
	}
	db.factory = factory
	db.watchConnections()

	db.logger.Info("Configured %s database", factory.Backend())
	return db, nil
}

// watchConnections counts physical connections in the metrics.
func (db *DB) watchConnections() {
	if db.metrics == nil {
		return
	}
	switch f := db.factory.(type) {
	case *sqlcommon.Factory:
		f.OnConnect(func(_ context.Context, conn *sqlcommon.PhysicalConn) error {
			db.metrics.ConnectionEstablished(conn.Backend())
			return nil
		})
	case *badger.Factory:
		f.OnConnect(func(context.Context, *badgerdb.DB) error {
			db.metrics.ConnectionEstablished(f.Backend())
			return nil
		})
	default:
		db.logger.Debug("Backend %s does not report connections", db.factory.Backend())
	}
}

// NewScope returns a scope for one logical unit of work. Scopes must not
// be shared between goroutines.
func (db *DB) NewScope(opts ...session.Option) *session.Scope {
	base := []session.Option{session.WithLogger(db.logger)}
	if db.metrics != nil {
		base = append(base, session.WithObserver(db.metrics))
	}
	return session.NewScope(db.factory, append(base, opts...)...)
}

// Do runs fn in a fresh scope.
func (db *DB) Do(ctx context.Context, fn func(ctx context.Context, sess session.Session) error) error {
	return db.NewScope().Do(ctx, fn)
}

// Ping acquires a session and checks the backend is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.Do(ctx, func(ctx context.Context, sess session.Session) error {
		pinger, ok := sess.(session.Pinger)
		if !ok {
			return fmt.Errorf("%s sessions do not support ping", db.factory.Backend())
		}
		return pinger.Ping(ctx)
	})
}

// Factory 返回会话工厂
func (db *DB) Factory() datasource.Factory {
	return db.factory
}

// Metrics returns the scope metrics, nil when metrics are disabled.
func (db *DB) Metrics() *monitor.ScopeMetrics {
	return db.metrics
}

// Logger 返回日志器
func (db *DB) Logger() api.Logger {
	return db.logger
}

// Close 关闭会话工厂
func (db *DB) Close() error {
	return db.factory.Close()
}
