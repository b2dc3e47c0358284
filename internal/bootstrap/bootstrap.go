// Package bootstrap is the dependency container composition root
// (spec.md §6/SPEC_FULL.md §5.9), grounded on the teacher's
// internal/app/bootstrap.WireServices: a single function that resolves
// config, builds each component in dependency order, and returns a
// Container the entrypoint starts and tears down.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pixoo/daemon/internal/api"
	"github.com/pixoo/daemon/internal/bus"
	"github.com/pixoo/daemon/internal/capability"
	"github.com/pixoo/daemon/internal/config"
	"github.com/pixoo/daemon/internal/devicedriver"
	"github.com/pixoo/daemon/internal/log"
	"github.com/pixoo/daemon/internal/router"
	"github.com/pixoo/daemon/internal/scene"
	"github.com/pixoo/daemon/internal/scheduler"
	"github.com/pixoo/daemon/internal/store"
	"github.com/pixoo/daemon/internal/watchdog"
)

// Container is the fully-wired production dependency graph.
type Container struct {
	Config    config.AppConfig
	Holder    *config.Holder
	Store     *store.Store
	Scenes    *scene.Registry
	Drivers   *devicedriver.Registry
	Scheduler *scheduler.Scheduler
	Bus       bus.Bus
	Router    *router.Router
	Watchdog  *watchdog.Watchdog
	API       *api.Server

	restartCh chan struct{}
}

// SceneSource registers the scenes available at startup. The scene
// package deliberately carries no scene implementations of its own
// (spec.md §4.6); callers of WireServices supply whatever scenes their
// deployment needs before the registry is frozen.
type SceneSource func(*scene.Registry) error

// WireServices builds the production dependency graph:
// ConfigLoader -> StateStore -> DriverRegistry -> SceneRegistry ->
// Scheduler -> {CommandRouter, REST, Watchdog, BusAdapter}
// (SPEC_FULL.md §5.9).
func WireServices(configPath, version string, scenes ...SceneSource) (*Container, error) {
	loader := config.NewLoader(configPath, version)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	log.Configure(log.Config{Level: cfg.LogLevel, Service: "pixoo-daemon", Version: version})
	logger := log.WithComponent("bootstrap")

	holder := config.NewHolder(cfg, loader, configPath)

	st := store.New(cfg.StatePath)
	recovered, err := st.LoadOrInit()
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load persisted state, starting from configured defaults")
		recovered = nil
	}

	sceneRegistry := scene.NewRegistry()
	for _, src := range scenes {
		if err := src(sceneRegistry); err != nil {
			return nil, fmt.Errorf("register scenes: %w", err)
		}
	}
	sceneRegistry.Freeze()

	var messageBus bus.Bus
	if cfg.MessageBus.Host != "" {
		mb, err := bus.NewMQTTBus(bus.MQTTConfig{
			Broker:   cfg.MessageBus.Host,
			ClientID: "pixoo-daemon",
			Username: cfg.MessageBus.Username,
			Password: cfg.MessageBus.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("connect message bus: %w", err)
		}
		messageBus = mb
		logger.Info().Str("broker", cfg.MessageBus.Host).Msg("connected to message bus")
	} else {
		messageBus = bus.NewMemoryBus()
		logger.Warn().Msg("no message bus host configured, using in-process memory bus")
	}

	drivers := devicedriver.NewRegistry(messageBus)
	sched := scheduler.New(st, sceneRegistry, messageBus, scheduler.DefaultConfig())

	for _, dc := range cfg.Devices {
		caps, err := capability.ForDeviceType(dc.DeviceType)
		if err != nil {
			return nil, fmt.Errorf("device %q: %w", dc.ID, err)
		}
		var snapshot store.DurableSnapshot
		if recovered != nil {
			snapshot = recovered[dc.ID]
		}
		if err := st.AddDevice(dc, caps, snapshot); err != nil {
			return nil, fmt.Errorf("register device %q: %w", dc.ID, err)
		}

		driverKind := devicedriver.Kind(dc.DriverKind)
		if driverKind == "" {
			driverKind = devicedriver.KindMock
		}
		d, err := drivers.Build(driverKind, dc.ID, dc.Host, caps)
		if err != nil {
			return nil, fmt.Errorf("build driver for device %q: %w", dc.ID, err)
		}

		sched.RegisterDevice(dc.ID)
		sched.SetDriver(dc.ID, d)

		if snapshot.LastKnownScene != "" {
			if err := sched.SwitchScene(context.Background(), dc.ID, snapshot.LastKnownScene, nil); err != nil {
				logger.Warn().Err(err).Str("device_id", dc.ID).Str("scene", snapshot.LastKnownScene).Msg("could not resume last known scene")
			}
		}
	}

	cmdRouter := router.New(messageBus, st, sched, drivers, router.BuildInfo{Version: version})

	wd := watchdog.New(st, sceneRegistry, sched, messageBus, config.DefaultWatchdogCheck)

	c := &Container{
		Config:    cfg,
		Holder:    holder,
		Store:     st,
		Scenes:    sceneRegistry,
		Drivers:   drivers,
		Scheduler: sched,
		Bus:       messageBus,
		Router:    cmdRouter,
		Watchdog:  wd,
		restartCh: make(chan struct{}, 1),
	}

	// c itself implements api.ShutdownRequester; the REST adapter is
	// constructed after the container so POST /api/daemon/restart can
	// signal Run's teardown loop.
	c.API = api.New(
		api.Config{
			Port:               cfg.REST.Port,
			RateLimitRPS:       20,
			RateLimitWhitelist: nil,
		},
		st, sched, sceneRegistry, drivers, messageBus,
		c,
		api.BuildInfo{Version: version},
	)

	return c, nil
}

// RequestRestart implements api.ShutdownRequester: it signals the
// entrypoint's Run loop to unwind and let the process supervisor
// restart it, rather than restarting in-place (spec.md §6 `POST
// /api/daemon/restart`).
func (c *Container) RequestRestart(ctx context.Context) error {
	select {
	case c.restartCh <- struct{}{}:
	default:
	}
	return nil
}

// RestartRequested reports whether the REST adapter asked for a
// restart, for the entrypoint to distinguish a signal-driven shutdown
// from a restart request in its exit log; both paths exit with code 0.
func (c *Container) RestartRequested() bool {
	select {
	case <-c.restartCh:
		return true
	default:
		return false
	}
}

// Run starts every long-running component and blocks until ctx is
// cancelled or one of them fails, then tears down the rest within the
// scheduler's configured shutdown grace window (SPEC_FULL.md §5.9).
func (c *Container) Run(ctx context.Context) error {
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		select {
		case <-c.restartCh:
			// Put the signal back for RestartRequested, then unwind.
			select {
			case c.restartCh <- struct{}{}:
			default:
			}
			cancelRun()
		case <-gctx.Done():
		}
		return nil
	})
	g.Go(func() error {
		return c.Router.Start(gctx)
	})
	g.Go(func() error {
		c.Watchdog.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return c.API.Start(gctx)
	})

	if holder := c.Holder; holder != nil {
		if err := holder.StartWatcher(gctx); err != nil {
			log.WithComponent("bootstrap").Warn().Err(err).Msg("config file watcher failed to start")
		}
	}

	err := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c.Scheduler.Shutdown(shutdownCtx)
	c.Router.Stop()
	_ = c.Bus.Close()

	return err
}
