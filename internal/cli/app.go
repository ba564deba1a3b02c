// Package cli wires configuration into a running plotbridge process.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/plotbridge"
	"github.com/aretw0/plotbridge/internal/adapters/file"
	"github.com/aretw0/plotbridge/internal/adapters/host"
	surfacehttp "github.com/aretw0/plotbridge/internal/adapters/http"
	"github.com/aretw0/plotbridge/internal/config"
	"github.com/aretw0/plotbridge/pkg/adapters/memory"
	"github.com/aretw0/plotbridge/pkg/adapters/redis"
	"github.com/aretw0/plotbridge/pkg/descriptor"
	"github.com/aretw0/plotbridge/pkg/export"
	"github.com/aretw0/plotbridge/pkg/observability"
	"github.com/aretw0/plotbridge/pkg/persistence/middleware"
	"github.com/aretw0/plotbridge/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App is a wired plotbridge process.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Paths    descriptor.SessionPaths
	State    *file.WorkspaceState
	Store    ports.AnnotationStore
	Bridge   *plotbridge.Bridge
	Registry *prometheus.Registry
	Surfaces *surfacehttp.Server

	closers []func() error
}

// WorkspaceState opens the session state file of cfg.
func WorkspaceState(cfg config.Config) *file.WorkspaceState {
	return file.NewWorkspaceState(filepath.Join(cfg.StateDir(), "workspace.json"))
}

// OpenStore builds the annotation store and optional locker selected by cfg.
// The returned closer releases backend connections.
func OpenStore(cfg config.Config) (ports.AnnotationStore, ports.DistributedLocker, func() error, error) {
	store, locker, closeFn, err := openBackend(cfg)
	if err != nil {
		return nil, nil, closeFn, err
	}
	if enc := cfg.Encryption(); enc != nil {
		store = middleware.Wrap(store, middleware.NewEncryptionMiddleware(*enc))
	}
	return store, locker, closeFn, nil
}

func openBackend(cfg config.Config) (ports.AnnotationStore, ports.DistributedLocker, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Store.Backend {
	case config.StoreMemory:
		return memory.NewStore(), nil, noop, nil
	case config.StoreFile:
		return file.New(cfg.StorePath()), nil, noop, nil
	case config.StoreRedis:
		r := cfg.Store.Redis
		opts := []redis.Option{}
		if r.Prefix != "" {
			opts = append(opts, redis.WithPrefix(r.Prefix))
		}
		if r.TTL > 0 {
			opts = append(opts, redis.WithTTL(r.TTL))
		}
		store := redis.New(r.Address, r.Password, r.DB, opts...)
		prefix := r.Prefix
		if prefix == "" {
			prefix = redis.DefaultPrefix
		}
		locker := redis.NewLocker(store.Client(), prefix)
		return store, locker, store.Close, nil
	default:
		return nil, nil, noop, fmt.Errorf("%w: unknown store backend %q", config.ErrInvalid, cfg.Store.Backend)
	}
}

// Open wires every component described by cfg. Nothing runs until Serve.
func Open(cfg config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	state := WorkspaceState(cfg)
	paths, err := descriptor.OpenSession(state, cfg.Layout())
	if err != nil {
		return nil, err
	}

	store, locker, closeStore, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}
	format, _ := export.ParseFormat(cfg.Export.Format)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	hostOpts := []host.Option{
		host.WithFormat(strings.ToUpper(string(format))),
		host.WithExportDir(cfg.Export.Dir),
		host.WithLogger(logger),
	}
	if cfg.ExternalHost != "" {
		hostOpts = append(hostOpts, host.WithExternalHost(cfg.ExternalHost))
	}

	opts := []plotbridge.Option{
		plotbridge.WithLogger(logger),
		plotbridge.WithHost(host.NewHeadless(hostOpts...)),
		plotbridge.WithStore(store),
		plotbridge.WithSessionKey(paths.ID),
		plotbridge.WithTimings(cfg.ConnectionTimings()),
		plotbridge.WithHooks(observability.LogHooks(logger)),
		plotbridge.WithMetrics(metrics),
		plotbridge.WithWorkspaceDir(cfg.WorkspaceDir),
		plotbridge.WithDefaultFormat(format),
	}
	if locker != nil {
		opts = append(opts, plotbridge.WithLocker(locker))
	}
	if cfg.Port == 0 {
		resolver := descriptor.NewResolver(paths,
			descriptor.WithPollInterval(cfg.Timings.PollInterval),
			descriptor.WithFirstPoll(cfg.Timings.FirstPoll),
			descriptor.WithLogger(logger),
		)
		opts = append(opts, plotbridge.WithDescriptor(resolver))
	}
	bridge := plotbridge.New(opts...)

	app := &App{
		Config:   cfg,
		Logger:   logger,
		Paths:    paths,
		State:    state,
		Store:    store,
		Bridge:   bridge,
		Registry: reg,
		closers:  []func() error{closeStore},
	}
	app.Surfaces = surfacehttp.NewServer(bridge,
		surfacehttp.WithLogger(logger),
		surfacehttp.WithGatherer(reg),
	)
	if pinger, ok := store.(interface{ Ping(context.Context) error }); ok {
		app.Surfaces.Health().AddReadinessCheck("store", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return pinger.Ping(ctx)
		})
	}
	return app, nil
}

// Serve runs the bridge and the surface server until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bridgeErr := make(chan error, 1)
	go func() { bridgeErr <- a.Bridge.Run(ctx) }()
	if a.Config.Port != 0 {
		a.Bridge.SetEndpoint(ctx, a.Config.Port)
	}

	err := a.Surfaces.ListenAndServe(ctx, a.Config.Listen)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	cancel()
	if runErr := <-bridgeErr; err == nil {
		err = runErr
	}
	return err
}

// Close releases store connections.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
