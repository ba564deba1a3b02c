package cli_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/plotbridge/internal/cli"
	"github.com/aretw0/plotbridge/internal/config"
	"github.com/aretw0/plotbridge/internal/logging"
	"github.com/aretw0/plotbridge/internal/testutils"
	"github.com/aretw0/plotbridge/pkg/adapters/memory"
	"github.com/aretw0/plotbridge/pkg/descriptor"
	"github.com/aretw0/plotbridge/pkg/domain"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.WorkspaceDir = t.TempDir()
	cfg.TempDir = t.TempDir()
	cfg.Store.Backend = config.StoreMemory
	return cfg
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	store, locker, closeFn, err := cli.OpenStore(cfg)
	require.NoError(t, err)
	assert.Nil(t, locker)
	assert.NoError(t, closeFn())
	assert.NoError(t, store.Save(ctx, "k", domain.RetainedAnnotations{"1": {Note: "n"}}))

	cfg.Store.Backend = config.StoreFile
	store, _, _, err = cli.OpenStore(cfg)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, "k", domain.RetainedAnnotations{"1": {IsFavorite: true}}))
	assert.FileExists(t, filepath.Join(cfg.StorePath(), "k.json"))

	mr := miniredis.RunT(t)
	cfg.Store.Backend = config.StoreRedis
	cfg.Store.Redis.Address = mr.Addr()
	store, locker, closeFn, err = cli.OpenStore(cfg)
	require.NoError(t, err)
	require.NotNil(t, locker)
	defer closeFn()
	require.NoError(t, store.Save(ctx, "k", domain.RetainedAnnotations{"1": {Note: "r"}}))
	got, err := store.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "r", got["1"].Note)

	unlock, err := locker.Lock(ctx, "k", time.Second)
	require.NoError(t, err)
	assert.NoError(t, unlock(ctx))

	cfg.Store.Backend = "tape"
	_, _, _, err = cli.OpenStore(cfg)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestOpenStore_Encrypted(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Store.Backend = config.StoreFile
	cfg.Store.EncryptionKey = base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))

	store, _, _, err := cli.OpenStore(cfg)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, "k", domain.RetainedAnnotations{"1": {Note: "confidential"}}))

	raw, err := os.ReadFile(filepath.Join(cfg.StorePath(), "k.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "confidential")

	got, err := store.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "confidential", got["1"].Note)
}

func TestBuildReport(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	state := cli.WorkspaceState(cfg)
	store := memory.NewStore()

	rep, err := cli.BuildReport(ctx, cfg, state, store)
	require.NoError(t, err)
	assert.False(t, rep.Discovered)
	assert.Contains(t, rep.Session, descriptor.SessionPrefix)
	assert.Contains(t, rep.Markdown(), "not announced")

	require.NoError(t, descriptor.Write(rep.Descriptor, descriptor.Descriptor{Port: 8765}))
	require.NoError(t, store.Save(ctx, rep.Session, domain.RetainedAnnotations{
		"1": {IsFavorite: true},
		"2": {Note: "x"},
	}))

	again, err := cli.BuildReport(ctx, cfg, state, store)
	require.NoError(t, err)
	assert.Equal(t, rep.Session, again.Session, "session id is stable")
	assert.True(t, again.Discovered)
	assert.Equal(t, 8765, again.Port)
	assert.Equal(t, 2, again.Annotations)
	assert.Equal(t, 1, again.Favorites)
	assert.Contains(t, again.Markdown(), "| Backend port | 8765 |")
}

func TestWriteEnvFile_KeepsOtherEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("OTHER=1\n"), 0o644))

	paths := descriptor.SessionPaths{ID: "s", Primary: "/tmp/s.json"}
	require.NoError(t, cli.WriteEnvFile(path, paths))

	values, err := godotenv.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "1", values["OTHER"])
	assert.Equal(t, "/tmp/s.json", values[descriptor.EnvVar])
}

func TestApp_SurfacesAndMetrics(t *testing.T) {
	cfg := testConfig(t)
	app, err := cli.Open(cfg, logging.NewNop())
	require.NoError(t, err)
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = app.Bridge.Run(ctx) }()

	srv := httptest.NewServer(app.Surfaces.Handler())
	defer srv.Close()

	get := func(path string) string {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(b)
	}
	assert.Contains(t, get("/info"), app.Paths.ID)
	assert.Contains(t, get("/metrics"), "plotbridge_plots")
}

func TestApp_ServeConnectsToFixedPort(t *testing.T) {
	backend := testutils.NewBackend(t)
	cfg := testConfig(t)
	cfg.Port = backend.Port()
	cfg.Listen = "127.0.0.1:0"

	app, err := cli.Open(cfg, logging.NewNop())
	require.NoError(t, err)
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx) }()

	assert.Eventually(t, func() bool { return app.Bridge.State().Connected() }, testutils.Wait, testutils.Tick)
	assert.Eventually(t, func() bool {
		types := backend.Types()
		return len(types) > 0 && types[0] == domain.MsgGetPlots
	}, testutils.Wait, testutils.Tick)

	cancel()
	assert.NoError(t, <-done)
}
