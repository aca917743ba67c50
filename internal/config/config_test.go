package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sushant-115/namedex/core/storage/pagefile"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "namedex.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
storage:
  path: /var/lib/namedex/index.ndx
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, pagefile.DefaultPageSize, cfg.Storage.PageSize)
	require.Equal(t, defaultPoolSize, cfg.Storage.PoolSize)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, "namedex", cfg.Telemetry.ServiceName)
	require.False(t, cfg.Telemetry.Enabled)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
storage:
  path: /tmp/index.ndx
  page_size: 4096
  pool_size: 32
logging:
  level: debug
  format: console
telemetry:
  enabled: true
  service_name: namedex-test
  prometheus_port: 9464
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 4096, cfg.Storage.PageSize)
	require.Equal(t, 32, cfg.Storage.PoolSize)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.True(t, cfg.Telemetry.Enabled)
	require.Equal(t, 9464, cfg.Telemetry.PrometheusPort)
}

func TestLoadRejectsInvalid(t *testing.T) {
	_, err := Load(writeConfig(t, "storage: {}\n"))
	require.Error(t, err, "missing storage.path")

	_, err = Load(writeConfig(t, `
storage:
  path: /tmp/index.ndx
  page_size: 128
`))
	require.Error(t, err, "page size below minimum")

	_, err = Load(writeConfig(t, `
storage:
  path: /tmp/index.ndx
  pool_size: 2
`))
	require.Error(t, err, "pool size below minimum")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
