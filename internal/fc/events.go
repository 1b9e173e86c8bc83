package fc

import "time"

// Bus topics for connection lifecycle events and status snapshots.
const (
	BusTopicConnection = "fc.connection"
	BusTopicStatus     = "fc.status"
)

// ConnState is the lifecycle state carried by ConnectionEvent.
type ConnState string

const (
	ConnStateConnecting   ConnState = "connecting"
	ConnStateConnected    ConnState = "connected"
	ConnStateDisconnected ConnState = "disconnected"
)

// ConnectionEvent is published on the bus at every lifecycle transition.
type ConnectionEvent struct {
	State         ConnState     `json:"state"`
	Transport     TransportKind `json:"connection_type,omitempty"`
	Target        string        `json:"target,omitempty"`
	Error         string        `json:"error,omitempty"`
	UserRequested bool          `json:"user_requested,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}
