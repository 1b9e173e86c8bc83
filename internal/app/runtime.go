package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"gcslink/internal/bus"
	"gcslink/internal/config"
	"gcslink/internal/fc"
	"gcslink/internal/logging"
	"gcslink/internal/router"
	"gcslink/internal/state"
	"gcslink/internal/web"
)

// Runtime owns every long-lived component of the service and their
// startup/shutdown order.
type Runtime struct {
	Ctx    context.Context
	cancel context.CancelFunc

	Config config.AppConfig

	LogManager *logging.Manager
	Bus        *bus.PubSubBus
	Store      *state.Store
	Router     *router.Router
	Manager    *fc.Manager
	Server     *web.Server

	tasks sync.WaitGroup
}

// taskStopTimeout bounds how long Close waits for the supervisory tasks
// after cancelling their context.
const taskStopTimeout = 3 * time.Second

func Initialize(parent context.Context, configPath string) (*Runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	ctx, cancel := context.WithCancel(parent)
	rt := &Runtime{
		Ctx:    ctx,
		cancel: cancel,
		Config: cfg,
	}

	logMgr := logging.NewManager()
	if err := logMgr.Configure(cfg.Logging, cfg.LogFilePath()); err != nil {
		cancel()
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	rt.LogManager = logMgr
	slog.Info("starting gcslink runtime", "version", BuildVersionWithDate())

	store, err := state.OpenOrReset(ctx, cfg.StateFilePath(), logMgr.Logger("state"))
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Store = store

	rt.Bus = bus.New(logMgr.Logger("bus"))
	rt.Router = router.New(logMgr.Logger("router"))

	dialer := fc.NewMavlinkDialer(logMgr.Logger("mavlink"))
	rt.Manager = fc.NewManager(logMgr.Logger("fc"), rt.Bus, rt.Router, store, dialer)

	rt.Server = web.NewServer(logMgr.Logger("web"), cfg.Server.Listen, rt.Manager, rt.Router, rt.Bus, web.BuildInfo{
		Version:   BuildVersion(),
		BuildDate: BuildDateYMD(),
	})

	watchdog := fc.NewWatchdog(logMgr.Logger("watchdog"), rt.Manager)
	rt.runTask(func() { watchdog.Run(ctx) })

	statusInterval := time.Duration(cfg.FlightController.StatusIntervalSeconds) * time.Second
	broadcaster := fc.NewStatusBroadcaster(logMgr.Logger("status"), rt.Manager, statusInterval)
	rt.runTask(func() { broadcaster.Run(ctx) })

	if cfg.FlightController.AutoRestore {
		if err := rt.Manager.RestoreFromSaved(ctx); err != nil {
			slog.Warn("restore saved connection", "error", err)
		}
	}

	return rt, nil
}

// Run serves HTTP until ctx is cancelled.
func (r *Runtime) Run() error {
	return r.Server.Run(r.Ctx)
}

func (r *Runtime) runTask(fn func()) {
	r.tasks.Add(1)
	go func() {
		defer r.tasks.Done()
		fn()
	}()
}

// waitForTasks blocks until the supervisory tasks exit, bounded by
// taskStopTimeout. A stuck task is logged, not fatal.
func (r *Runtime) waitForTasks() {
	done := make(chan struct{})
	go func() {
		r.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(taskStopTimeout):
		slog.Warn("supervisory tasks did not stop in time")
	}
}

// Close stops the supervisory tasks and the link without touching the
// persisted connection state, so a restart restores the last deliberate
// state.
func (r *Runtime) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	r.waitForTasks()
	if r.Manager != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		r.Manager.Shutdown(shutdownCtx)
		cancel()
	}
	if r.Bus != nil {
		r.Bus.Close()
	}
	if r.Store != nil {
		_ = r.Store.Close()
	}
	if r.LogManager != nil {
		_ = r.LogManager.Close()
	}
	return nil
}
