package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "focusflow.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30*time.Second, cfg.Persistence.FlushInterval)
	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Store, cfg.Store)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
store:
  backend: redis
  redis_addr: "redis:6379"
  redis_db: 2
persistence:
  flush_interval: 5s
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.Equal(t, "redis:6379", cfg.Store.RedisAddr)
	assert.Equal(t, 2, cfg.Store.RedisDB)
	assert.Equal(t, 5*time.Second, cfg.Persistence.FlushInterval)
	assert.Equal(t, 10*time.Second, cfg.Persistence.FlushTimeout, "unset fields keep defaults")
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "store:\n  sqlite_path: /from/file.db\n")
	t.Setenv("FOCUSFLOW_DB_PATH", "/from/env.db")
	t.Setenv("PORT", "7000")
	t.Setenv("FOCUSFLOW_FLUSH_INTERVAL", "1m")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/from/env.db", cfg.Store.SQLitePath)
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, time.Minute, cfg.Persistence.FlushInterval)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "store: [unclosed"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "store:\n  backend: mongo\n"))
	assert.ErrorContains(t, err, "unknown store.backend")

	t.Setenv("FOCUSFLOW_REDIS_DB", "two")
	_, err = Load("")
	assert.ErrorContains(t, err, "FOCUSFLOW_REDIS_DB")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Persistence.FlushInterval = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Store.Backend = BackendRedis
	cfg.Store.RedisAddr = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Limits.SendBuffer = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Limits.MaxMessageSize = 0
	assert.ErrorContains(t, cfg.Validate(), "max_message_size")

	cfg = Default()
	cfg.Server.ShutdownTimeout = -time.Second
	assert.ErrorContains(t, cfg.Validate(), "shutdown_timeout")
}
