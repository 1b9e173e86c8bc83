package fc

import (
	"context"
	"log/slog"
	"time"
)

const (
	// HeartbeatTimeout is the maximum heartbeat age before the watchdog
	// declares the link dead.
	HeartbeatTimeout = 10 * time.Second

	watchdogInterval      = 1 * time.Second
	defaultStatusInterval = 5 * time.Second
)

// Watchdog observes the manager's heartbeat age and disconnects a link
// whose autopilot has gone silent. It never fires before the first
// heartbeat, so a freshly opened connection is not killed prematurely.
type Watchdog struct {
	logger  *slog.Logger
	manager *Manager
	timeout time.Duration
}

func NewWatchdog(logger *slog.Logger, m *Manager) *Watchdog {
	return &Watchdog{logger: logger, manager: m, timeout: HeartbeatTimeout}
}

func (w *Watchdog) Run(ctx context.Context) {
	w.logger.Info("heartbeat watchdog started", "timeout", w.timeout)
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("heartbeat watchdog stopped")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Watchdog) tick(ctx context.Context) {
	st := w.manager.Status()
	if !st.Connected || st.LastHeartbeatAge == nil {
		return
	}
	age := time.Duration(*st.LastHeartbeatAge * float64(time.Second))
	if age <= w.timeout {
		return
	}
	w.logger.Warn("heartbeat timeout, auto-disconnecting",
		"age", age.Round(time.Millisecond), "timeout", w.timeout)
	w.manager.Disconnect(ctx, false)
}

// StatusBroadcaster periodically publishes the manager's status snapshot
// on the bus so streaming consumers see liveness without polling.
type StatusBroadcaster struct {
	logger   *slog.Logger
	manager  *Manager
	interval time.Duration
}

func NewStatusBroadcaster(logger *slog.Logger, m *Manager, interval time.Duration) *StatusBroadcaster {
	if interval <= 0 {
		interval = defaultStatusInterval
	}
	return &StatusBroadcaster{logger: logger, manager: m, interval: interval}
}

func (b *StatusBroadcaster) Run(ctx context.Context) {
	b.logger.Info("status broadcaster started", "interval", b.interval)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("status broadcaster stopped")
			return
		case <-ticker.C:
			if m := b.manager; m != nil && m.bus != nil {
				m.bus.Publish(BusTopicStatus, m.Status())
			}
		}
	}
}
