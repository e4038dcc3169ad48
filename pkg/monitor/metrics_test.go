package monitor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kasuganosora/sqlscope/pkg/session"
	"github.com/kasuganosora/sqlscope/pkg/testutils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ session.Observer = (*ScopeMetrics)(nil)

func TestScopeMetrics_ObservesScope(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m, err := NewScopeMetrics(reg, "test")
	require.NoError(t, err)

	scope := session.NewScope(testutils.NewFakeFactory(), session.WithObserver(m))

	_, err = scope.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.active))

	_, err = scope.Acquire(ctx)
	require.NoError(t, err)
	_, err = scope.Acquire(ctx)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, scope.Release(ctx))
	}
	require.NoError(t, scope.Release(ctx))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.opened))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.closed))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.active))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.reentries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.unbalanced))
}

func TestScopeMetrics_AcquireFailed(t *testing.T) {
	m, err := NewScopeMetrics(nil, "")
	require.NoError(t, err)

	factory := testutils.NewFakeFactory()
	factory.FailWith(errors.New("unreachable"))
	scope := session.NewScope(factory, session.WithObserver(m))

	_, err = scope.Acquire(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.acquireFailed))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.active))
}

func TestScopeMetrics_Connections(t *testing.T) {
	m, err := NewScopeMetrics(nil, "")
	require.NoError(t, err)

	m.ConnectionEstablished("sqlite")
	m.ConnectionEstablished("sqlite")
	m.ConnectionEstablished("badger")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.connections.WithLabelValues("sqlite")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connections.WithLabelValues("badger")))
}

func TestScopeMetrics_Exposition(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewScopeMetrics(reg, "app")
	require.NoError(t, err)
	m.SessionOpened()

	expected := `
# HELP app_session_opened_total Sessions created by scopes.
# TYPE app_session_opened_total counter
app_session_opened_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "app_session_opened_total"))
}

func TestScopeMetrics_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewScopeMetrics(reg, "shared")
	require.NoError(t, err)
	second, err := NewScopeMetrics(reg, "shared")
	require.NoError(t, err)

	first.SessionOpened()
	second.SessionOpened()

	assert.Equal(t, 2.0, testutil.ToFloat64(first.opened))
	assert.Same(t, first.connections, second.connections)
}
