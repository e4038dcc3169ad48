package badger

import (
	"context"
	"errors"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/kasuganosora/sqlscope/pkg/api"
	"github.com/kasuganosora/sqlscope/pkg/datasource"
	"github.com/kasuganosora/sqlscope/pkg/session"
	"github.com/kasuganosora/sqlscope/pkg/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryFactory(t *testing.T, logger api.Logger) *Factory {
	t.Helper()
	f, err := NewFactory(&datasource.Config{URL: "badger://"}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestParseOptions(t *testing.T) {
	u, err := datasource.ParseURL("badger:////var/lib/kv?sync_writes=true&compression=zstd&num_memtables=3&value_threshold=2048")
	require.NoError(t, err)

	opts, err := parseOptions(u)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/kv", opts.Dir)
	assert.False(t, opts.InMemory())
	assert.True(t, opts.SyncWrites)
	assert.Equal(t, options.ZSTD, opts.Compression)
	assert.Equal(t, 3, opts.NumMemtables)
	assert.EqualValues(t, 2048, opts.ValueThreshold)
}

func TestParseOptions_Memory(t *testing.T) {
	for _, raw := range []string{"badger://", "badger:///:memory:"} {
		u, err := datasource.ParseURL(raw)
		require.NoError(t, err)
		opts, err := parseOptions(u)
		require.NoError(t, err)
		assert.True(t, opts.InMemory(), raw)
		assert.Equal(t, options.Snappy, opts.Compression)
	}
}

func TestNewFactory_Invalid(t *testing.T) {
	tests := []string{
		"badger://host/dir",
		"badger:///dir?compression=lz4",
		"badger:///dir?sync_writes=maybe",
		"badger:///dir?unknown=1",
		"sqlite:///app.db",
		"",
	}
	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			f, err := NewFactory(&datasource.Config{URL: raw}, nil)
			assert.Nil(t, f)
			assert.True(t, api.IsConfigurationError(err), "got %v", err)
		})
	}
}

func TestSession_CommitMakesWritesVisible(t *testing.T) {
	ctx := context.Background()
	f := newMemoryFactory(t, nil)

	s1, err := f.Open(ctx)
	require.NoError(t, err)
	require.NoError(t, s1.Set(ctx, []byte("user:1"), []byte("alice")))

	v, err := s1.Get(ctx, []byte("user:1"))
	require.NoError(t, err)
	assert.Equal(t, "alice", string(v), "a session reads its own writes")

	s2, err := f.Open(ctx)
	require.NoError(t, err)
	_, err = s2.Get(ctx, []byte("user:1"))
	assert.ErrorIs(t, err, ErrKeyNotFound)
	require.NoError(t, s2.Close(ctx))

	require.NoError(t, s1.Commit(ctx))
	require.NoError(t, s1.Close(ctx))

	s3, err := f.Open(ctx)
	require.NoError(t, err)
	defer s3.Close(ctx)
	v, err = s3.Get(ctx, []byte("user:1"))
	require.NoError(t, err)
	assert.Equal(t, "alice", string(v))
}

func TestSession_CloseDiscardsWithWarning(t *testing.T) {
	ctx := context.Background()
	logger := testutils.NewRecordingLogger()
	f := newMemoryFactory(t, logger)

	s, err := f.Open(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, []byte("k"), []byte("v")))
	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx))
	assert.True(t, logger.Contains("Discarding uncommitted writes"))

	s2, err := f.Open(ctx)
	require.NoError(t, err)
	defer s2.Close(ctx)
	_, err = s2.Get(ctx, []byte("k"))
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestSession_DeleteRollbackAndKeys(t *testing.T) {
	ctx := context.Background()
	s, err := newMemoryFactory(t, nil).Open(ctx)
	require.NoError(t, err)
	defer s.Close(ctx)

	for _, k := range []string{"a:1", "a:2", "b:1"} {
		require.NoError(t, s.Set(ctx, []byte(k), []byte("x")))
	}
	require.NoError(t, s.Commit(ctx))

	require.NoError(t, s.Delete(ctx, []byte("a:1")))
	keys, err := s.Keys(ctx, []byte("a:"))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("a:2")}, keys)

	require.NoError(t, s.Rollback(ctx))
	keys, err = s.Keys(ctx, []byte("a:"))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("a:1"), []byte("a:2")}, keys)
}

func TestSession_Conflict(t *testing.T) {
	ctx := context.Background()
	f := newMemoryFactory(t, nil)

	s1, err := f.Open(ctx)
	require.NoError(t, err)
	defer s1.Close(ctx)
	s2, err := f.Open(ctx)
	require.NoError(t, err)
	defer s2.Close(ctx)

	_, err = s1.Get(ctx, []byte("counter"))
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, s2.Set(ctx, []byte("counter"), []byte("1")))
	require.NoError(t, s2.Commit(ctx))

	require.NoError(t, s1.Set(ctx, []byte("counter"), []byte("2")))
	err = s1.Commit(ctx)
	assert.True(t, api.IsErrorCode(err, api.ErrCodeTransaction))
	assert.ErrorIs(t, err, badger.ErrConflict)

	// the session stays usable after a failed commit
	v, err := s1.Get(ctx, []byte("counter"))
	require.NoError(t, err)
	assert.Equal(t, "1", string(v))
}

func TestSession_UseAfterClose(t *testing.T) {
	ctx := context.Background()
	s, err := newMemoryFactory(t, nil).Open(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx))

	_, err = s.Get(ctx, []byte("k"))
	assert.True(t, api.IsErrorCode(err, api.ErrCodeClosed))
	assert.True(t, api.IsErrorCode(s.Set(ctx, []byte("k"), nil), api.ErrCodeClosed))
	assert.True(t, api.IsErrorCode(s.Commit(ctx), api.ErrCodeClosed))
	assert.True(t, api.IsErrorCode(s.Ping(ctx), api.ErrCodeClosed))
}

func TestFactory_OpenHookRunsOnce(t *testing.T) {
	ctx := context.Background()
	f := newMemoryFactory(t, nil)

	var calls int
	f.OnConnect(func(ctx context.Context, db *badger.DB) error {
		calls++
		return db.Update(func(txn *badger.Txn) error {
			return txn.Set([]byte("schema_version"), []byte("1"))
		})
	})
	assert.Zero(t, f.Connections())

	for i := 0; i < 3; i++ {
		s, err := f.Open(ctx)
		require.NoError(t, err)
		v, err := s.Get(ctx, []byte("schema_version"))
		require.NoError(t, err)
		assert.Equal(t, "1", string(v))
		require.NoError(t, s.Close(ctx))
	}
	assert.Equal(t, 1, calls)
	assert.EqualValues(t, 1, f.Connections())
}

func TestFactory_OpenHookFailure(t *testing.T) {
	f := newMemoryFactory(t, nil)
	boom := errors.New("boom")
	f.OnConnect(func(ctx context.Context, db *badger.DB) error { return boom })

	s, err := f.NewSession(context.Background())
	assert.Nil(t, s)
	assert.True(t, api.IsConnectionError(err))
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, f.Connections())
}

func TestFactory_FileStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	f, err := NewFactory(&datasource.Config{URL: "badger:///" + dir + "?sync_writes=true"}, nil)
	require.NoError(t, err)
	s, err := f.Open(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, []byte("k"), []byte("durable")))
	require.NoError(t, s.Commit(ctx))
	require.NoError(t, s.Close(ctx))
	require.NoError(t, f.Close())

	f, err = NewFactory(&datasource.Config{URL: "badger:///" + dir}, nil)
	require.NoError(t, err)
	defer f.Close()
	s, err = f.Open(ctx)
	require.NoError(t, err)
	defer s.Close(ctx)
	v, err := s.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "durable", string(v))
}

func TestFactory_Close(t *testing.T) {
	ctx := context.Background()
	f, err := NewFactory(&datasource.Config{URL: "badger://"}, nil)
	require.NoError(t, err)

	s, err := f.Open(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx))

	require.NoError(t, f.Close())
	require.NoError(t, f.Close())

	_, err = f.Open(ctx)
	assert.True(t, api.IsErrorCode(err, api.ErrCodeClosed))
}

func TestFactory_CancelledContext(t *testing.T) {
	f := newMemoryFactory(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := f.Open(ctx)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.Connections())
}

func TestScope_WithBadgerFactory(t *testing.T) {
	ctx := context.Background()
	logger := testutils.NewRecordingLogger()
	f := newMemoryFactory(t, logger)
	scope := session.NewScope(f, session.WithLogger(logger))

	err := scope.Do(ctx, func(ctx context.Context, sess session.Session) error {
		kv := sess.(*Session)
		if err := kv.Set(ctx, []byte("k"), []byte("v")); err != nil {
			return err
		}
		return scope.Do(ctx, func(ctx context.Context, inner session.Session) error {
			assert.Same(t, sess, inner)
			return inner.(*Session).Commit(ctx)
		})
	})
	require.NoError(t, err)
	assert.False(t, scope.IsOpen())
	assert.True(t, logger.Contains("Re-entering database session (depth: 1)"))

	var v []byte
	require.NoError(t, scope.Do(ctx, func(ctx context.Context, sess session.Session) error {
		var err error
		v, err = sess.(*Session).Get(ctx, []byte("k"))
		return err
	}))
	assert.Equal(t, "v", string(v))
}

func TestOpener(t *testing.T) {
	o := NewOpener()
	assert.Equal(t, []string{"badger"}, o.Schemes())

	f, err := o.Open(&datasource.Config{URL: "badger://"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "badger", f.Backend())
	require.NoError(t, f.Close())
}
