package monitor

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// ScopeMetrics 会话作用域监控指标, 实现 session.Observer
type ScopeMetrics struct {
	opened        prometheus.Counter
	closed        prometheus.Counter
	active        prometheus.Gauge
	reentries     prometheus.Counter
	reentryDepth  prometheus.Histogram
	unbalanced    prometheus.Counter
	acquireFailed prometheus.Counter
	connections   *prometheus.CounterVec
}

// NewScopeMetrics creates the collectors and registers them with reg. A
// nil reg leaves them unregistered. Collectors already registered under the
// same names are reused, so several databases may share one registry.
func NewScopeMetrics(reg prometheus.Registerer, namespace string) (*ScopeMetrics, error) {
	if namespace == "" {
		namespace = "sqlscope"
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      name,
			Help:      help,
		})
	}

	m := &ScopeMetrics{
		opened:        counter("opened_total", "Sessions created by scopes."),
		closed:        counter("closed_total", "Sessions closed by scopes."),
		reentries:     counter("reentries_total", "Nested acquisitions of an open session."),
		unbalanced:    counter("unbalanced_releases_total", "Releases of a scope holding no session."),
		acquireFailed: counter("acquire_failures_total", "Acquisitions that failed to produce a session."),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Sessions currently held by scopes.",
		}),
		reentryDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "reentry_depth",
			Help:      "Depth reached by nested acquisitions.",
			Buckets:   []float64{1, 2, 3, 5, 8},
		}),
		connections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "connections_total",
			Help:      "Physical connections established.",
		}, []string{"backend"}),
	}

	if reg == nil {
		return m, nil
	}

	var err error
	m.opened = register(reg, m.opened, &err)
	m.closed = register(reg, m.closed, &err)
	m.reentries = register(reg, m.reentries, &err)
	m.unbalanced = register(reg, m.unbalanced, &err)
	m.acquireFailed = register(reg, m.acquireFailed, &err)
	m.active = register(reg, m.active, &err)
	m.reentryDepth = register(reg, m.reentryDepth, &err)
	m.connections = register(reg, m.connections, &err)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// register registers c, returning the existing collector when an identical
// one is already registered. The first failure is kept in errp.
func register[C prometheus.Collector](reg prometheus.Registerer, c C, errp *error) C {
	if *errp != nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		*errp = err
	}
	return c
}

// SessionOpened 记录会话创建
func (m *ScopeMetrics) SessionOpened() {
	m.opened.Inc()
	m.active.Inc()
}

// SessionClosed 记录会话关闭
func (m *ScopeMetrics) SessionClosed() {
	m.closed.Inc()
	m.active.Dec()
}

// Reentered 记录重入
func (m *ScopeMetrics) Reentered(depth int) {
	m.reentries.Inc()
	m.reentryDepth.Observe(float64(depth))
}

func (m *ScopeMetrics) UnbalancedRelease() {
	m.unbalanced.Inc()
}

func (m *ScopeMetrics) AcquireFailed(error) {
	m.acquireFailed.Inc()
}

// ConnectionEstablished counts a new physical connection of backend.
func (m *ScopeMetrics) ConnectionEstablished(backend string) {
	m.connections.WithLabelValues(backend).Inc()
}
