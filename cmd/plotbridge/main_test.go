package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/plotbridge/internal/cli"
	"github.com/aretw0/plotbridge/internal/config"
	"github.com/aretw0/plotbridge/pkg/descriptor"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) {
	t.Helper()
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
}

func TestSessionLifecycle(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte("store:\n  backend: memory\n"), 0o644))

	run(t, "session", "show", "--dir", dir)
	cfg, err := config.Load(dir, "")
	require.NoError(t, err)
	id, ok, err := cli.WorkspaceState(cfg).Get(descriptor.SessionKey)
	require.NoError(t, err)
	require.True(t, ok)

	run(t, "env", "--dir", dir, "--write")
	values, err := godotenv.Read(filepath.Join(dir, config.EnvFile))
	require.NoError(t, err)
	assert.Equal(t, cfg.Layout().Paths(id).Primary, values[descriptor.EnvVar])

	run(t, "status", "--dir", dir, "--json")

	run(t, "session", "reset", "--dir", dir, "--purge")
	_, ok, err = cli.WorkspaceState(cfg).Get(descriptor.SessionKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadConfig_RejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte("store:\n  backend: tape\n"), 0o644))

	rootCmd.SetArgs([]string{"status", "--dir", dir})
	assert.ErrorIs(t, rootCmd.Execute(), config.ErrInvalid)
}
