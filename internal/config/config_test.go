package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)
	require.NoError(t, flags.Parse(args))
	return flags
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newFlags(t))
	require.NoError(t, err)
	assert.Equal(t, "studydeck.db", cfg.DB)
	assert.Equal(t, "127.0.0.1:8080", cfg.Addr)
	assert.Equal(t, "repos", cfg.ReposDir)
	assert.False(t, cfg.SyncOnStart)
	assert.Equal(t, 5*time.Second, cfg.SaveTimeout)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadLayering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "studydeck.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db: /var/lib/studydeck/file.db
addr: 0.0.0.0:9000
save_timeout: 2s
session_ttl: 10m
log:
  level: debug
`), 0o644))
	t.Setenv("STUDYDECK_ADDR", "localhost:7000")
	t.Setenv("STUDYDECK_LOG__LEVEL", "warn")

	cfg, err := Load(newFlags(t, "--config", path, "--log-level", "error", "--sync"))
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/studydeck/file.db", cfg.DB, "file overrides defaults")
	assert.Equal(t, 2*time.Second, cfg.SaveTimeout)
	assert.Equal(t, 10*time.Minute, cfg.SessionTTL)
	assert.Equal(t, "localhost:7000", cfg.Addr, "env overrides file")
	assert.Equal(t, "error", cfg.Log.Level, "flags override env")
	assert.True(t, cfg.SyncOnStart)
}

func TestLoadUnsetFlagsDoNotOverride(t *testing.T) {
	t.Setenv("STUDYDECK_DB", "env.db")
	cfg, err := Load(newFlags(t))
	require.NoError(t, err)
	assert.Equal(t, "env.db", cfg.DB)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(newFlags(t, "--config", filepath.Join(t.TempDir(), "nope.yaml")))
	assert.ErrorContains(t, err, "not found")
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad level", []string{"--log-level", "loud"}},
		{"bad addr", []string{"--addr", "not-an-address"}},
		{"zero timeout", []string{"--save-timeout", "0s"}},
		{"zero session ttl", []string{"--session-ttl", "0s"}},
		{"empty db", []string{"--db", ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(newFlags(t, tt.args...))
			assert.ErrorContains(t, err, "config: invalid")
		})
	}
}

func TestLoadNilFlags(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "studydeck.db", cfg.DB)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{Log: LogConfig{Level: "warn"}}
	logger := cfg.Logger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "k=v")
}
