package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	override "github.com/goliatone/go-override"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "overridectl.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
backend = "file"
env_layer = true

[file]
path = "/tmp/flags.toml"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendFile, cfg.Backend)
	assert.True(t, cfg.EnvLayer)
	assert.Equal(t, "/tmp/flags.toml", cfg.File.Path)
	assert.Equal(t, "Override_", cfg.File.Prefix, "unset keys keep their defaults")
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadRejectsUnknownKeysAndBackends(t *testing.T) {
	_, err := Load(writeConfig(t, `bakend = "file"`))
	assert.ErrorContains(t, err, "bakend")

	_, err = Load(writeConfig(t, `backend = "etcd"`))
	assert.ErrorIs(t, err, ErrUnknownBackend)

	_, err = Load(writeConfig(t, `log_level = "loud"`))
	assert.Error(t, err)
}

func TestOpenMemoryAndFile(t *testing.T) {
	ctx := context.Background()

	opened, err := Open(ctx, Default(), nil)
	require.NoError(t, err)
	_, ok := opened.Store.(*override.MemoryStore)
	assert.True(t, ok, "memory backend opens a MemoryStore")
	require.NoError(t, opened.Close())

	cfg := Default()
	cfg.Backend = BackendFile
	cfg.File.Path = filepath.Join(t.TempDir(), "overrides.json")
	opened, err = Open(ctx, cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, opened.File)
	require.NoError(t, opened.Store.Save(ctx, "search", override.Enabled))
	data, err := os.ReadFile(cfg.File.Path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Override_search":"ON"}`, string(data))
}

func TestOpenRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := Default()
	cfg.Backend = BackendRedis
	cfg.Redis.Addr = mr.Addr()

	opened, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer opened.Close()

	require.NoError(t, opened.Store.Save(context.Background(), "search", override.Disabled))
	value, err := mr.Get("override:search")
	require.NoError(t, err)
	assert.Equal(t, "OFF", value)
}

func TestOpenLayersEnvironment(t *testing.T) {
	t.Setenv("OVERRIDE_SEARCH", "ON")
	cfg := Default()
	cfg.EnvLayer = true

	opened, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	layered, ok := opened.Store.(*override.LayeredStore)
	require.True(t, ok, "env layer wraps the backend")
	assert.Equal(t, 2, layered.Len())

	state, err := layered.Load(context.Background(), "search")
	require.NoError(t, err)
	assert.Equal(t, override.Enabled, state)
	assert.Equal(t, "env", layered.Trace(context.Background(), "search").Source)
}
