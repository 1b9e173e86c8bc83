package fc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"gcslink/internal/bus"
)

const (
	maxConsecutiveErrors  = 5
	defaultReceiveTimeout = 1 * time.Second
	defaultRetryBackoff   = 1 * time.Second
	defaultStopTimeout    = 3 * time.Second
)

var errTooManyReadErrors = errors.New("too many consecutive read errors")

// StateStore persists the ConnectionState record across process restarts.
// The manager is its only writer; the startup sequence reads it once.
type StateStore interface {
	Load(ctx context.Context) (ConnectionState, error)
	Save(ctx context.Context, st ConnectionState) error
}

// Publisher fans a decoded message out to topic subscribers.
type Publisher interface {
	Publish(msg DecodedMessage)
}

// Status is a point-in-time snapshot of the live connection.
type Status struct {
	Connected        bool              `json:"connected"`
	ConnectionType   TransportKind     `json:"connection_type,omitempty"`
	Params           map[string]string `json:"params,omitempty"`
	BaudRate         int               `json:"baudrate,omitempty"`
	LastHeartbeatAge *float64          `json:"last_heartbeat_age"`
	ErrorCount       int               `json:"error_count"`
	ReaderRunning    bool              `json:"reader_running"`
}

// Manager owns the single physical link to the flight controller and the
// MAVLink session bound to it. Connect and disconnect serialize on opMu;
// mu guards the live fields the read loop updates.
type Manager struct {
	logger *slog.Logger
	bus    bus.MessageBus
	pub    Publisher
	store  StateStore
	dialer Dialer

	receiveTimeout time.Duration
	retryBackoff   time.Duration
	stopTimeout    time.Duration
	maxErrors      int

	opMu sync.Mutex

	mu            sync.Mutex
	running       bool
	cfg           ConnectionConfig
	hasCfg        bool
	session       Session
	readCancel    context.CancelFunc
	readDone      chan struct{}
	lastHeartbeat time.Time
	errorCount    int
}

func NewManager(logger *slog.Logger, b bus.MessageBus, pub Publisher, store StateStore, dialer Dialer) *Manager {
	return &Manager{
		logger:         logger,
		bus:            b,
		pub:            pub,
		store:          store,
		dialer:         dialer,
		receiveTimeout: defaultReceiveTimeout,
		retryBackoff:   defaultRetryBackoff,
		stopTimeout:    defaultStopTimeout,
		maxErrors:      maxConsecutiveErrors,
	}
}

// Connect validates cfg, opens the transport and MAVLink session, starts
// the read loop and persists the new state. An existing session is torn
// down first; connect always supersedes. On any setup failure the manager
// stays Disconnected and nothing is persisted.
func (m *Manager) Connect(ctx context.Context, cfg ConnectionConfig) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Transport == TransportSerial {
		if err := checkSerialDevice(cfg.Device()); err != nil {
			return err
		}
	}

	if m.connectedNow() {
		m.logger.Info("existing connection detected, disconnecting before new connect")
		m.teardown(ctx, false, true)
	}

	m.logger.Info("connecting to flight controller",
		"transport", cfg.Transport, "target", cfg.Target(), "baudrate", cfg.BaudRate)
	m.publishEvent(ConnStateConnecting, cfg, nil, false)

	session, err := m.dialer.Dial(cfg)
	if err != nil {
		m.logger.Error("flight controller connect failed", "target", cfg.Target(), "error", err)
		m.publishEvent(ConnStateDisconnected, cfg, err, false)
		return err
	}

	stored := cfg.clone()
	readCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	m.mu.Lock()
	m.cfg = stored
	m.hasCfg = true
	m.session = session
	m.errorCount = 0
	m.lastHeartbeat = time.Time{}
	m.running = true
	m.readCancel = cancel
	m.readDone = done
	m.mu.Unlock()

	go func() {
		err := m.readLoop(readCtx, session)
		close(done)
		if err != nil {
			m.autoDisconnect(session)
		}
	}()

	snapshot := stored.clone()
	st := ConnectionState{
		Connected:        true,
		UserDisconnected: false,
		Config:           &snapshot,
		LastSuccess:      time.Now(),
	}
	if err := m.store.Save(ctx, st); err != nil {
		m.logger.Warn("persist connection state failed", "error", err)
	}
	m.publishEvent(ConnStateConnected, cfg, nil, false)
	m.logger.Info("connected to flight controller", "transport", cfg.Transport, "target", cfg.Target())
	return nil
}

// Disconnect tears the link down and persists the new state. Idempotent:
// a disconnect while already disconnected is a no-op.
func (m *Manager) Disconnect(ctx context.Context, userRequested bool) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.teardown(ctx, userRequested, true)
}

// Shutdown closes the link on process exit without rewriting the
// persisted state, so the next start restores the last deliberate state.
func (m *Manager) Shutdown(ctx context.Context) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.teardown(ctx, false, false)
}

// Status returns a consistent snapshot of the live connection.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		Connected:     m.running && m.session != nil,
		ErrorCount:    m.errorCount,
		ReaderRunning: m.readerRunningLocked(),
	}
	if m.hasCfg {
		st.ConnectionType = m.cfg.Transport
		st.BaudRate = m.cfg.BaudRate
		st.Params = make(map[string]string, len(m.cfg.Params))
		for k, v := range m.cfg.Params {
			st.Params[k] = v
		}
	}
	if !m.lastHeartbeat.IsZero() {
		age := time.Since(m.lastHeartbeat).Seconds()
		if age < 0 {
			age = 0
		}
		st.LastHeartbeatAge = &age
	}
	return st
}

// RestoreFromSaved loads the persisted state and reconnects when the last
// run ended connected and the user did not ask to disconnect. A failed
// restore persists the disconnected state and is not fatal.
func (m *Manager) RestoreFromSaved(ctx context.Context) error {
	st, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load connection state: %w", err)
	}
	if !st.Connected || st.UserDisconnected || st.Config == nil {
		m.logger.Info("no restorable flight controller connection",
			"was_connected", st.Connected, "user_disconnected", st.UserDisconnected)
		return nil
	}

	cfg := st.Config.clone()
	m.logger.Info("restoring flight controller connection",
		"transport", cfg.Transport, "target", cfg.Target())
	if err := m.Connect(ctx, cfg); err != nil {
		m.logger.Warn("restore connect failed", "error", err)
		saved := ConnectionState{Connected: false, UserDisconnected: false, Config: st.Config}
		if serr := m.store.Save(ctx, saved); serr != nil {
			m.logger.Warn("persist connection state failed", "error", serr)
		}
	}
	return nil
}

func (m *Manager) connectedNow() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running || m.session != nil
}

// teardown assumes opMu is held. It stops the reader, closes the session
// and, when persist is set, writes the disconnected state.
func (m *Manager) teardown(ctx context.Context, userRequested, persist bool) {
	m.mu.Lock()
	if !m.running && m.session == nil {
		m.mu.Unlock()
		return
	}
	m.logger.Info("disconnecting from flight controller", "user_requested", userRequested)
	m.running = false
	cancel := m.readCancel
	done := m.readDone
	session := m.session
	cfg := m.cfg
	hasCfg := m.hasCfg
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(m.stopTimeout):
			m.logger.Warn("read loop did not stop in time")
		}
	}
	if session != nil {
		if err := session.Close(); err != nil {
			m.logger.Warn("close session failed", "error", err)
		}
	}

	m.mu.Lock()
	m.session = nil
	m.readCancel = nil
	m.readDone = nil
	m.lastHeartbeat = time.Time{}
	m.mu.Unlock()

	if persist {
		st := ConnectionState{Connected: false, UserDisconnected: userRequested}
		if hasCfg {
			snapshot := cfg.clone()
			st.Config = &snapshot
		}
		if err := m.store.Save(ctx, st); err != nil {
			m.logger.Warn("persist connection state failed", "error", err)
		}
	}
	m.publishEvent(ConnStateDisconnected, cfg, nil, userRequested)
	m.logger.Info("disconnected from flight controller")
}

// autoDisconnect is the read loop's exit path after sustained failure. It
// only acts if session is still the current one, so a connect that raced
// in meanwhile is left alone.
func (m *Manager) autoDisconnect(session Session) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	current := m.session == session
	m.mu.Unlock()
	if !current {
		return
	}
	m.teardown(context.Background(), false, true)
}

// readLoop receives frames until cancelled or until the consecutive-error
// threshold is reached. A receive timeout with no frame is not an error.
func (m *Manager) readLoop(ctx context.Context, session Session) error {
	m.logger.Info("flight controller read loop started")
	defer m.logger.Info("flight controller read loop stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		msg, err := session.Receive(m.receiveTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			count := m.noteError()
			var terr *TransportError
			if errors.As(err, &terr) {
				m.logger.Warn("transport error while reading",
					"error", err, "count", count, "device_gone", indicatesDeviceGone(err))
			} else {
				m.logger.Error("unexpected error in read loop", "error", err, "count", count)
			}
			if count >= m.maxErrors {
				m.logger.Error("too many consecutive read errors, auto-disconnecting", "count", count)
				return errTooManyReadErrors
			}
			if !sleepWithContext(ctx, m.retryBackoff) {
				return nil
			}
			continue
		}
		if msg == nil {
			continue
		}

		now := time.Now()
		dm := Decode(NewMessage(msg, now))
		if dm.Type == "HEARTBEAT" {
			m.noteHeartbeat(now)
		}
		if m.pub != nil {
			m.pub.Publish(dm)
		}
	}
}

func (m *Manager) noteHeartbeat(now time.Time) {
	m.mu.Lock()
	m.lastHeartbeat = now
	m.errorCount = 0
	m.mu.Unlock()
	m.logger.Debug("received HEARTBEAT from flight controller")
}

func (m *Manager) noteError() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount++
	return m.errorCount
}

func (m *Manager) readerRunningLocked() bool {
	if m.readDone == nil {
		return false
	}
	select {
	case <-m.readDone:
		return false
	default:
		return true
	}
}

func (m *Manager) publishEvent(state ConnState, cfg ConnectionConfig, err error, userRequested bool) {
	if m.bus == nil {
		return
	}
	ev := ConnectionEvent{
		State:         state,
		Transport:     cfg.Transport,
		Target:        cfg.Target(),
		UserRequested: userRequested,
		Timestamp:     time.Now(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	m.bus.Publish(BusTopicConnection, ev)
}

func checkSerialDevice(device string) error {
	if _, err := os.Stat(device); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrDeviceNotFound, device)
		}
		return newTransportError("stat", err)
	}
	if err := unix.Access(device, unix.R_OK|unix.W_OK); err != nil {
		return fmt.Errorf("%w: %s (user may need to be in the dialout group)", ErrPermissionDenied, device)
	}
	return nil
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
