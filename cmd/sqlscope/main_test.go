package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/kasuganosora/sqlscope/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		for _, name := range []string{"config", "url", "debug"} {
			flag := rootCmd.PersistentFlags().Lookup(name)
			flag.Value.Set(flag.DefValue)
			flag.Changed = false
		}
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "sqlscope version dev\n", out)
}

func TestPing_SQLiteMemory(t *testing.T) {
	out, err := run(t, "ping", "--url", "sqlite:///:memory:")
	require.NoError(t, err)
	assert.Contains(t, out, "ok: sqlite")
}

func TestPing_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  url: badger://\nlog:\n  level: error\n"), 0644))

	out, err := run(t, "ping", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "ok: badger")
}

func TestPing_MalformedURL(t *testing.T) {
	_, err := run(t, "ping", "--url", "sqlite:relative.db")
	assert.True(t, api.IsConfigurationError(err), "got %v", err)
}
