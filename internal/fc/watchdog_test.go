package fc

import (
	"context"
	"testing"
	"time"

	"gcslink/internal/bus"
)

func connectedTestManager(t *testing.T) (*Manager, *memStore) {
	t.Helper()
	store := &memStore{}
	m := newTestManager(&fakeDialer{}, store, nil, nil)
	if err := m.Connect(context.Background(), udpConfig()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { m.Disconnect(context.Background(), false) })
	return m, store
}

func setHeartbeatAge(m *Manager, age time.Duration) {
	m.mu.Lock()
	m.lastHeartbeat = time.Now().Add(-age)
	m.mu.Unlock()
}

func TestWatchdogDisconnectsOnStaleHeartbeat(t *testing.T) {
	m, store := connectedTestManager(t)
	setHeartbeatAge(m, 11*time.Second)

	w := NewWatchdog(testLogger(), m)
	w.tick(context.Background())

	if m.Status().Connected {
		t.Fatalf("expected watchdog to disconnect a stale link")
	}
	if store.lastSave().UserDisconnected {
		t.Fatalf("watchdog disconnect must not be recorded as user requested")
	}
}

func TestWatchdogKeepsFreshHeartbeat(t *testing.T) {
	m, _ := connectedTestManager(t)
	setHeartbeatAge(m, 5*time.Second)

	w := NewWatchdog(testLogger(), m)
	w.tick(context.Background())

	if !m.Status().Connected {
		t.Fatalf("expected fresh link to survive the watchdog")
	}
}

func TestWatchdogIgnoresLinkWithoutHeartbeat(t *testing.T) {
	m, _ := connectedTestManager(t)

	w := NewWatchdog(testLogger(), m)
	w.tick(context.Background())

	if !m.Status().Connected {
		t.Fatalf("watchdog must not fire before the first heartbeat")
	}
}

func TestWatchdogIgnoresDisconnectedManager(t *testing.T) {
	store := &memStore{}
	m := newTestManager(&fakeDialer{}, store, nil, nil)

	w := NewWatchdog(testLogger(), m)
	w.tick(context.Background())

	if store.saveCount() != 0 {
		t.Fatalf("watchdog must be a no-op while disconnected")
	}
}

func TestStatusBroadcasterPublishesSnapshots(t *testing.T) {
	b := bus.New(testLogger())
	defer b.Close()
	sub := b.Subscribe(BusTopicStatus)

	store := &memStore{}
	m := newTestManager(&fakeDialer{}, store, nil, b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	broadcaster := NewStatusBroadcaster(testLogger(), m, 10*time.Millisecond)
	go broadcaster.Run(ctx)

	select {
	case raw := <-sub:
		st, ok := raw.(Status)
		if !ok {
			t.Fatalf("unexpected payload type %T", raw)
		}
		if st.Connected {
			t.Fatalf("expected disconnected snapshot, got %+v", st)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for status snapshot")
	}
}
