package config

import (
	"bytes"
	"encoding/base64"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := load(dir, "", env(nil))
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.WorkspaceDir)
	assert.Equal(t, StoreFile, cfg.Store.Backend)
	assert.Equal(t, 2*time.Second, cfg.Timings.PollInterval)
	assert.Equal(t, time.Second, cfg.Timings.FirstPoll)
	assert.Equal(t, 100*time.Millisecond, cfg.ConnectionTimings().SettleDelay)
	assert.Equal(t, filepath.Join(dir, ".plotbridge", "annotations"), cfg.StorePath())
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, FileName), `
listen: 127.0.0.1:9000
external_host: devbox.internal
store:
  backend: redis
  redis:
    address: localhost:6379
    ttl: 1h
export:
  format: svg
timings:
  connect_timeout: 500ms
`)
	write(t, filepath.Join(dir, EnvFile), "PLOTBRIDGE_LOG_LEVEL=debug\nPLOTBRIDGE_LISTEN=127.0.0.1:7000\n")

	cfg, err := load(dir, "", env(map[string]string{
		"PLOTBRIDGE_LISTEN":       "127.0.0.1:9100",
		"PLOTBRIDGE_REDIS_DB":     "3",
		"PLOTBRIDGE_SETTLE_DELAY": "250ms",
	}))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9100", cfg.Listen, "process env wins over .env")
	assert.Equal(t, slog.LevelDebug, cfg.Level(), ".env wins over yaml defaults")
	assert.Equal(t, "devbox.internal", cfg.ExternalHost)
	assert.Equal(t, StoreRedis, cfg.Store.Backend)
	assert.Equal(t, 3, cfg.Store.Redis.DB)
	assert.Equal(t, time.Hour, cfg.Store.Redis.TTL)
	assert.Equal(t, "svg", cfg.Export.Format)
	assert.Equal(t, 500*time.Millisecond, cfg.Timings.ConnectTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Timings.SettleDelay)
	assert.Equal(t, 2*time.Second, cfg.Timings.ReconnectDelay)
}

func TestLoad_ExplicitFileMustExist(t *testing.T) {
	dir := t.TempDir()
	_, err := load(dir, filepath.Join(dir, "missing.yaml"), env(nil))
	assert.Error(t, err)
}

func TestLoad_BadEnvValue(t *testing.T) {
	_, err := load(t.TempDir(), "", env(map[string]string{"PLOTBRIDGE_CONNECT_TIMEOUT": "soon"}))
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "PLOTBRIDGE_CONNECT_TIMEOUT")
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"zero timing":      func(c *Config) { c.Timings.PollInterval = 0 },
		"negative timing":  func(c *Config) { c.Timings.SettleDelay = -time.Second },
		"unknown backend":  func(c *Config) { c.Store.Backend = "sqlite" },
		"redis no address": func(c *Config) { c.Store.Backend = StoreRedis },
		"bad format":       func(c *Config) { c.Export.Format = "gif" },
		"bad port":         func(c *Config) { c.Port = 70000 },
		"short key":        func(c *Config) { c.Store.EncryptionKey = "c2hvcnQ=" },
		"bad level":        func(c *Config) { c.LogLevel = "chatty" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestEncryption(t *testing.T) {
	cfg := Default()
	assert.Nil(t, cfg.Encryption())

	cfg.Store.EncryptionKey = base64.StdEncoding.EncodeToString(make([]byte, 32))
	cfg.Store.FallbackKeys = []string{base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{1}, 32))}
	require.NoError(t, cfg.Validate())

	enc := cfg.Encryption()
	require.NotNil(t, enc)
	assert.Len(t, enc.ActiveKey, 32)
	assert.Len(t, enc.FallbackKeys, 1)
}

func TestLayout(t *testing.T) {
	cfg := Default()
	cfg.TempDir = "/tmp/pb"
	cfg.WorkspaceDir = "/work"

	paths := cfg.Layout().Paths("plotbridge-session-x")
	assert.Equal(t, filepath.Join("/tmp/pb", "plotbridge-session-x.json"), paths.Primary)
	assert.Equal(t, filepath.Join("/work", ".r_plot_config.json"), paths.Legacy)
}
