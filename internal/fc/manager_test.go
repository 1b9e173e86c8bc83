package fc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"

	"gcslink/internal/bus"
)

type recvResult struct {
	msg any
	err error
}

type fakeSession struct {
	results chan recvResult

	mu     sync.Mutex
	closed bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{results: make(chan recvResult, 32)}
}

func (s *fakeSession) Receive(timeout time.Duration) (any, error) {
	select {
	case r := <-s.results:
		return r.msg, r.err
	case <-time.After(timeout):
		return nil, nil
	}
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeDialer struct {
	mu       sync.Mutex
	sessions []*fakeSession
	err      error
}

func (d *fakeDialer) Dial(cfg ConnectionConfig) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	s := newFakeSession()
	d.sessions = append(d.sessions, s)
	return s, nil
}

func (d *fakeDialer) session(i int) *fakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[i]
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sessions)
}

type memStore struct {
	mu    sync.Mutex
	state ConnectionState
	saves []ConnectionState
}

func (s *memStore) Load(ctx context.Context) (ConnectionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

func (s *memStore) Save(ctx context.Context, st ConnectionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
	s.saves = append(s.saves, st)
	return nil
}

func (s *memStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}

func (s *memStore) lastSave() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves[len(s.saves)-1]
}

type capturePublisher struct {
	mu   sync.Mutex
	msgs []DecodedMessage
}

func (p *capturePublisher) Publish(msg DecodedMessage) {
	p.mu.Lock()
	p.msgs = append(p.msgs, msg)
	p.mu.Unlock()
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

func (p *capturePublisher) last() DecodedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.msgs[len(p.msgs)-1]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(dialer Dialer, store StateStore, pub Publisher, b bus.MessageBus) *Manager {
	m := NewManager(testLogger(), b, pub, store, dialer)
	m.receiveTimeout = 10 * time.Millisecond
	m.retryBackoff = time.Millisecond
	return m
}

func udpConfig() ConnectionConfig {
	return ConnectionConfig{
		Transport: TransportUDP,
		Params:    map[string]string{"host": "127.0.0.1", "port": "14550"},
	}
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestManagerConnectInvalidConfig(t *testing.T) {
	store := &memStore{}
	m := newTestManager(&fakeDialer{}, store, nil, nil)

	err := m.Connect(context.Background(), ConnectionConfig{
		Transport: TransportSerial,
		Params:    map[string]string{},
	})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if store.saveCount() != 0 {
		t.Fatalf("expected no state writes on validation failure, got %d", store.saveCount())
	}
	if m.Status().Connected {
		t.Fatalf("expected disconnected status after failed connect")
	}
}

func TestManagerConnectDeviceNotFound(t *testing.T) {
	store := &memStore{}
	m := newTestManager(&fakeDialer{}, store, nil, nil)

	missing := filepath.Join(t.TempDir(), "ttyACM9")
	err := m.Connect(context.Background(), ConnectionConfig{
		Transport: TransportSerial,
		Params:    map[string]string{"device": missing},
		BaudRate:  57600,
	})
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
	if store.saveCount() != 0 {
		t.Fatalf("expected no state writes, got %d", store.saveCount())
	}
}

func TestManagerConnectDialFailure(t *testing.T) {
	store := &memStore{}
	dialer := &fakeDialer{err: newTransportError("open", errors.New("connection refused"))}
	m := newTestManager(dialer, store, nil, nil)

	err := m.Connect(context.Background(), udpConfig())
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if store.saveCount() != 0 {
		t.Fatalf("expected no state writes on dial failure, got %d", store.saveCount())
	}
	if m.Status().Connected {
		t.Fatalf("expected disconnected status after dial failure")
	}
}

func TestManagerConnectAndDisconnect(t *testing.T) {
	store := &memStore{}
	dialer := &fakeDialer{}
	m := newTestManager(dialer, store, nil, nil)

	if err := m.Connect(context.Background(), udpConfig()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	st := m.Status()
	if !st.Connected {
		t.Fatalf("expected connected status")
	}
	if st.ConnectionType != TransportUDP {
		t.Fatalf("expected udp connection type, got %q", st.ConnectionType)
	}
	saved := store.lastSave()
	if !saved.Connected || saved.UserDisconnected || saved.Config == nil {
		t.Fatalf("unexpected persisted state after connect: %+v", saved)
	}

	m.Disconnect(context.Background(), true)

	if m.Status().Connected {
		t.Fatalf("expected disconnected status")
	}
	saved = store.lastSave()
	if saved.Connected || !saved.UserDisconnected {
		t.Fatalf("unexpected persisted state after disconnect: %+v", saved)
	}
	if !dialer.session(0).isClosed() {
		t.Fatalf("expected session closed on disconnect")
	}
}

func TestManagerDisconnectWhenIdleIsNoop(t *testing.T) {
	store := &memStore{}
	m := newTestManager(&fakeDialer{}, store, nil, nil)

	m.Disconnect(context.Background(), true)
	if store.saveCount() != 0 {
		t.Fatalf("expected idle disconnect to write nothing, got %d saves", store.saveCount())
	}
}

func TestManagerReadLoopPublishesDecodedMessages(t *testing.T) {
	store := &memStore{}
	dialer := &fakeDialer{}
	pub := &capturePublisher{}
	m := newTestManager(dialer, store, pub, nil)

	if err := m.Connect(context.Background(), udpConfig()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer m.Disconnect(context.Background(), false)

	session := dialer.session(0)
	session.results <- recvResult{msg: &common.MessageHeartbeat{
		Type:         common.MAV_TYPE_QUADROTOR,
		CustomMode:   4,
		SystemStatus: common.MAV_STATE_ACTIVE,
	}}

	waitFor(t, func() bool { return pub.count() > 0 }, "published message")

	dm := pub.last()
	if dm.Type != "HEARTBEAT" {
		t.Fatalf("expected HEARTBEAT, got %q", dm.Type)
	}
	if dm.Decoded["flight_mode_name"] != "GUIDED" {
		t.Fatalf("expected decoded flight mode, got %v", dm.Decoded)
	}

	waitFor(t, func() bool { return m.Status().LastHeartbeatAge != nil }, "heartbeat age")
	if m.Status().ErrorCount != 0 {
		t.Fatalf("expected zero error count, got %d", m.Status().ErrorCount)
	}
}

func TestManagerAutoDisconnectAfterConsecutiveErrors(t *testing.T) {
	store := &memStore{}
	dialer := &fakeDialer{}
	m := newTestManager(dialer, store, nil, nil)

	if err := m.Connect(context.Background(), udpConfig()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	session := dialer.session(0)
	for i := 0; i < maxConsecutiveErrors; i++ {
		session.results <- recvResult{err: newTransportError("read", errors.New("no data"))}
	}

	waitFor(t, func() bool { return !m.Status().Connected }, "auto disconnect")

	saved := store.lastSave()
	if saved.Connected {
		t.Fatalf("expected disconnected persisted state")
	}
	if saved.UserDisconnected {
		t.Fatalf("auto disconnect must not be recorded as user requested")
	}
	if !session.isClosed() {
		t.Fatalf("expected session closed after auto disconnect")
	}
}

func TestManagerHeartbeatResetsErrorCount(t *testing.T) {
	store := &memStore{}
	dialer := &fakeDialer{}
	m := newTestManager(dialer, store, nil, nil)

	if err := m.Connect(context.Background(), udpConfig()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer m.Disconnect(context.Background(), false)

	session := dialer.session(0)
	for i := 0; i < maxConsecutiveErrors-1; i++ {
		session.results <- recvResult{err: newTransportError("read", errors.New("no data"))}
	}
	session.results <- recvResult{msg: &common.MessageHeartbeat{}}

	waitFor(t, func() bool {
		st := m.Status()
		return st.LastHeartbeatAge != nil && st.ErrorCount == 0
	}, "error count reset")

	if !m.Status().Connected {
		t.Fatalf("expected connection to survive %d errors", maxConsecutiveErrors-1)
	}
}

func TestManagerConnectSupersedesExisting(t *testing.T) {
	store := &memStore{}
	dialer := &fakeDialer{}
	m := newTestManager(dialer, store, nil, nil)

	if err := m.Connect(context.Background(), udpConfig()); err != nil {
		t.Fatalf("first connect: %v", err)
	}
	if err := m.Connect(context.Background(), udpConfig()); err != nil {
		t.Fatalf("second connect: %v", err)
	}
	defer m.Disconnect(context.Background(), false)

	if dialer.dialCount() != 2 {
		t.Fatalf("expected 2 dials, got %d", dialer.dialCount())
	}
	if !dialer.session(0).isClosed() {
		t.Fatalf("expected first session closed by superseding connect")
	}
	if dialer.session(1).isClosed() {
		t.Fatalf("second session must stay open")
	}
	if !m.Status().Connected {
		t.Fatalf("expected connected status after supersede")
	}
}

func TestManagerInvalidConnectKeepsExistingSession(t *testing.T) {
	store := &memStore{}
	dialer := &fakeDialer{}
	m := newTestManager(dialer, store, nil, nil)

	if err := m.Connect(context.Background(), udpConfig()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer m.Disconnect(context.Background(), false)

	err := m.Connect(context.Background(), ConnectionConfig{Transport: "bluetooth"})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if !m.Status().Connected {
		t.Fatalf("invalid connect must not tear down the live session")
	}
	if dialer.session(0).isClosed() {
		t.Fatalf("existing session must stay open after rejected connect")
	}
}

func TestManagerShutdownDoesNotPersist(t *testing.T) {
	store := &memStore{}
	dialer := &fakeDialer{}
	m := newTestManager(dialer, store, nil, nil)

	if err := m.Connect(context.Background(), udpConfig()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	savesAfterConnect := store.saveCount()

	m.Shutdown(context.Background())

	if m.Status().Connected {
		t.Fatalf("expected disconnected after shutdown")
	}
	if store.saveCount() != savesAfterConnect {
		t.Fatalf("shutdown must not rewrite persisted state, got %d saves", store.saveCount())
	}
	if !store.lastSave().Connected {
		t.Fatalf("persisted state should still record the connection")
	}
}

func TestManagerRestoreFromSaved(t *testing.T) {
	cfg := udpConfig()
	store := &memStore{state: ConnectionState{
		Connected: true,
		Config:    &cfg,
	}}
	dialer := &fakeDialer{}
	m := newTestManager(dialer, store, nil, nil)

	if err := m.RestoreFromSaved(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	defer m.Disconnect(context.Background(), false)

	if !m.Status().Connected {
		t.Fatalf("expected restored connection")
	}
	if dialer.dialCount() != 1 {
		t.Fatalf("expected one dial, got %d", dialer.dialCount())
	}
}

func TestManagerRestoreSkipsUserDisconnected(t *testing.T) {
	cfg := udpConfig()
	store := &memStore{state: ConnectionState{
		Connected:        true,
		UserDisconnected: true,
		Config:           &cfg,
	}}
	dialer := &fakeDialer{}
	m := newTestManager(dialer, store, nil, nil)

	if err := m.RestoreFromSaved(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if dialer.dialCount() != 0 {
		t.Fatalf("expected no dial for user-disconnected state, got %d", dialer.dialCount())
	}
	if m.Status().Connected {
		t.Fatalf("expected disconnected status")
	}
}

func TestManagerRestoreFailurePersistsDisconnected(t *testing.T) {
	cfg := udpConfig()
	store := &memStore{state: ConnectionState{
		Connected: true,
		Config:    &cfg,
	}}
	dialer := &fakeDialer{err: newTransportError("open", errors.New("connection refused"))}
	m := newTestManager(dialer, store, nil, nil)

	if err := m.RestoreFromSaved(context.Background()); err != nil {
		t.Fatalf("restore failure must not be fatal, got %v", err)
	}

	saved := store.lastSave()
	if saved.Connected || saved.UserDisconnected {
		t.Fatalf("unexpected persisted state after failed restore: %+v", saved)
	}
	if saved.Config == nil {
		t.Fatalf("failed restore must keep the config for the UI")
	}
}

func TestManagerPublishesLifecycleEvents(t *testing.T) {
	b := bus.New(testLogger())
	defer b.Close()
	sub := b.Subscribe(BusTopicConnection)

	store := &memStore{}
	dialer := &fakeDialer{}
	m := newTestManager(dialer, store, nil, b)

	if err := m.Connect(context.Background(), udpConfig()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	m.Disconnect(context.Background(), true)

	var states []ConnState
	timeout := time.After(time.Second)
	for len(states) < 3 {
		select {
		case raw := <-sub:
			ev, ok := raw.(ConnectionEvent)
			if !ok {
				t.Fatalf("unexpected payload type %T", raw)
			}
			states = append(states, ev.State)
		case <-timeout:
			t.Fatalf("timed out, got states %v", states)
		}
	}

	want := []ConnState{ConnStateConnecting, ConnStateConnected, ConnStateDisconnected}
	for i, s := range want {
		if states[i] != s {
			t.Fatalf("event %d: expected %q, got %q", i, s, states[i])
		}
	}
}
