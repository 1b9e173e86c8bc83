package router

import (
	"io"
	"log/slog"
	"testing"

	"gcslink/internal/fc"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func drain(q Queue) []fc.DecodedMessage {
	var out []fc.DecodedMessage
	for {
		select {
		case msg := <-q:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestPublishRoutesToCategory(t *testing.T) {
	r := New(testLogger())
	status := make(Queue, 4)
	telemetry := make(Queue, 4)
	r.Subscribe(fc.TopicStatus, status)
	r.Subscribe(fc.TopicTelemetry, telemetry)

	r.Publish(fc.DecodedMessage{Type: "HEARTBEAT", Topic: fc.TopicStatus})

	if got := drain(status); len(got) != 1 {
		t.Fatalf("expected 1 status message, got %d", len(got))
	}
	if got := drain(telemetry); len(got) != 0 {
		t.Fatalf("expected no telemetry messages, got %d", len(got))
	}
}

func TestPublishDualCategory(t *testing.T) {
	r := New(testLogger())
	telemetry := make(Queue, 4)
	mapQ := make(Queue, 4)
	r.Subscribe(fc.TopicTelemetry, telemetry)
	r.Subscribe(fc.TopicMap, mapQ)

	r.Publish(fc.DecodedMessage{Type: "GLOBAL_POSITION_INT", Topic: fc.TopicTelemetry})

	if got := drain(telemetry); len(got) != 1 {
		t.Fatalf("expected telemetry delivery, got %d", len(got))
	}
	if got := drain(mapQ); len(got) != 1 {
		t.Fatalf("expected map delivery, got %d", len(got))
	}
}

func TestPublishRawSeesEverythingOnce(t *testing.T) {
	r := New(testLogger())
	raw := make(Queue, 8)
	r.Subscribe(fc.TopicRaw, raw)

	r.Publish(fc.DecodedMessage{Type: "GLOBAL_POSITION_INT", Topic: fc.TopicTelemetry})
	r.Publish(fc.DecodedMessage{Type: "STATUSTEXT", Topic: fc.TopicRaw})

	got := drain(raw)
	if len(got) != 2 {
		t.Fatalf("expected 2 raw deliveries, got %d", len(got))
	}
}

func TestPublishDedupesAcrossSubscribedTopics(t *testing.T) {
	r := New(testLogger())
	q := make(Queue, 8)
	r.Subscribe(fc.TopicTelemetry, q)
	r.Subscribe(fc.TopicMap, q)
	r.Subscribe(fc.TopicRaw, q)

	r.Publish(fc.DecodedMessage{Type: "GLOBAL_POSITION_INT", Topic: fc.TopicTelemetry})

	if got := drain(q); len(got) != 1 {
		t.Fatalf("expected one delivery to a multi-topic queue, got %d", len(got))
	}
}

func TestPublishDropsWhenQueueFull(t *testing.T) {
	r := New(testLogger())
	full := make(Queue, 1)
	roomy := make(Queue, 4)
	r.Subscribe(fc.TopicStatus, full)
	r.Subscribe(fc.TopicStatus, roomy)

	r.Publish(fc.DecodedMessage{Type: "HEARTBEAT", Topic: fc.TopicStatus})
	r.Publish(fc.DecodedMessage{Type: "SYS_STATUS", Topic: fc.TopicStatus})

	got := drain(full)
	if len(got) != 1 {
		t.Fatalf("expected 1 delivered message, got %d", len(got))
	}
	if got[0].Type != "HEARTBEAT" {
		t.Fatalf("expected oldest message kept, got %q", got[0].Type)
	}
	if r.Dropped(fc.TopicStatus) != 1 {
		t.Fatalf("expected 1 dropped, got %d", r.Dropped(fc.TopicStatus))
	}

	// A full queue drops only its own copy; other subscribers of the
	// topic still get every message.
	other := drain(roomy)
	if len(other) != 2 {
		t.Fatalf("expected 2 deliveries to the non-full queue, got %d", len(other))
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	r := New(testLogger())
	q := make(Queue, 4)
	r.Subscribe(fc.TopicStatus, q)
	r.Unsubscribe(fc.TopicStatus, q)

	r.Publish(fc.DecodedMessage{Type: "HEARTBEAT", Topic: fc.TopicStatus})

	if got := drain(q); len(got) != 0 {
		t.Fatalf("expected no deliveries after unsubscribe, got %d", len(got))
	}
	if r.Subscribers(fc.TopicStatus) != 0 {
		t.Fatalf("expected topic pruned, got %d subscribers", r.Subscribers(fc.TopicStatus))
	}

	// A second unsubscribe of the same queue is harmless.
	r.Unsubscribe(fc.TopicStatus, q)
}

func TestSubscribeIsIdempotent(t *testing.T) {
	r := New(testLogger())
	q := make(Queue, 4)
	r.Subscribe(fc.TopicStatus, q)
	r.Subscribe(fc.TopicStatus, q)

	if r.Subscribers(fc.TopicStatus) != 1 {
		t.Fatalf("expected 1 subscriber, got %d", r.Subscribers(fc.TopicStatus))
	}

	r.Publish(fc.DecodedMessage{Type: "HEARTBEAT", Topic: fc.TopicStatus})
	if got := drain(q); len(got) != 1 {
		t.Fatalf("expected single delivery, got %d", len(got))
	}
}
