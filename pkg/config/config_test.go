package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evgeniums/hatn-sub006/pkg/config"
)

const sample = `{
  // top-level comment
  "log": { "level": "debug" /* inline */ },
  "storage": {
    "path": "/var/lib/hatnd", // trailing comment with a "quote" inside
    "ttl_sweep_interval": "10s"
  },
  "rpc": {
    "listen_addr": "0.0.0.0:9443"
  }
}
`

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadStripsCommentsAndParses(t *testing.T) {
	path := writeConfig(t, t.TempDir(), sample)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "/var/lib/hatnd", cfg.Storage.Path)
	require.Equal(t, "10s", cfg.Storage.TTLSweepInterval)
	require.Equal(t, "0.0.0.0:9443", cfg.RPC.ListenAddr)
}

func TestLoadFallsBackToEnvDir(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, sample)
	t.Setenv("HATN_CONFIG_DIR", dir)

	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, "/var/lib/hatnd", cfg.Storage.Path)
}

func TestLoadMissingPathAndEnvFails(t *testing.T) {
	t.Setenv("HATN_CONFIG_DIR", "")
	_, err := config.Load("")
	require.Error(t, err)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `{"storage": {"path": "/data"}}`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, "30s", cfg.Storage.TTLSweepInterval)
}
