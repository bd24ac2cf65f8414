package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "beaverlog.yaml")
	require.NoError(t, os.WriteFile(file, []byte("http:\n  addr: \":7000\"\ngrpc:\n  addr: \":7001\"\nstorage:\n  backend: sqlite\n"), 0644))

	t.Setenv("BEAVERLOG_HTTP_ADDR", ":7100")
	t.Setenv("BEAVERLOG_STORAGE_BACKEND", "memory")

	cfg, err := loadConfig(flags{
		configFile: file,
		envFile:    filepath.Join(dir, "absent.env"),
		backend:    "badger",
	})
	require.NoError(t, err)

	assert.Equal(t, ":7001", cfg.GRPC.Addr, "file value kept")
	assert.Equal(t, ":7100", cfg.HTTP.Addr, "env overrides file")
	assert.Equal(t, "badger", cfg.Storage.Backend, "flag overrides env")
}

func TestLoadConfig_BadFile(t *testing.T) {
	_, err := loadConfig(flags{configFile: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}
