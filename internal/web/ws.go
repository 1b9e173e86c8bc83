package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"gcslink/internal/fc"
	"gcslink/internal/router"
)

const (
	streamQueueSize = 100
	idleHeartbeat   = 1 * time.Second
	wsWriteTimeout  = 5 * time.Second
)

// The UI is served from a different origin during development, so the
// upgrader accepts any origin. The service binds to the operator's LAN.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type wsFrame struct {
	Type   string `json:"type"`
	Topic  string `json:"topic,omitempty"`
	Status string `json:"status,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// handleTopicStream streams decoded messages of one topic to a client.
// Slow clients lose messages at the queue, never stall the read loop.
func (s *Server) handleTopicStream(w http.ResponseWriter, r *http.Request) {
	topic, err := fc.ParseTopic(chi.URLParam(r, "topic"))
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	q := make(router.Queue, streamQueueSize)
	s.router.Subscribe(topic, q)
	defer s.router.Unsubscribe(topic, q)
	s.logger.Info("topic stream opened", "topic", topic, "remote", r.RemoteAddr)
	defer s.logger.Info("topic stream closed", "topic", topic, "remote", r.RemoteAddr)

	if err := s.writeFrame(conn, wsFrame{Type: "connected", Topic: string(topic), Status: "subscribed"}); err != nil {
		return
	}

	closed := watchClose(conn)
	for {
		select {
		case <-closed:
			return
		case msg := <-q:
			if err := s.writeFrame(conn, wsFrame{Type: "data", Topic: string(topic), Data: msg}); err != nil {
				return
			}
		case <-time.After(idleHeartbeat):
			if err := s.writeFrame(conn, wsFrame{Type: "heartbeat"}); err != nil {
				return
			}
		}
	}
}

// handleConnectionStream pushes connection lifecycle events and periodic
// status snapshots to a client. The current status is sent immediately so
// the client never starts blind.
func (s *Server) handleConnectionStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := s.bus.Subscribe(fc.BusTopicConnection, fc.BusTopicStatus)
	defer s.bus.Unsubscribe(sub, fc.BusTopicConnection, fc.BusTopicStatus)
	s.logger.Info("connection stream opened", "remote", r.RemoteAddr)
	defer s.logger.Info("connection stream closed", "remote", r.RemoteAddr)

	if err := s.writeFrame(conn, wsFrame{Type: "status", Data: s.manager.Status()}); err != nil {
		return
	}

	closed := watchClose(conn)
	for {
		select {
		case <-closed:
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			frame := wsFrame{Type: "status", Data: payload}
			if _, isEvent := payload.(fc.ConnectionEvent); isEvent {
				frame.Type = "connection"
			}
			if err := s.writeFrame(conn, frame); err != nil {
				return
			}
		case <-time.After(idleHeartbeat):
			if err := s.writeFrame(conn, wsFrame{Type: "heartbeat"}); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, frame wsFrame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(frame); err != nil {
		s.logger.Debug("websocket write failed", "error", err)
		return err
	}
	return nil
}

// watchClose drains incoming frames so the peer's close handshake is
// noticed. The returned channel closes when the client goes away.
func watchClose(conn *websocket.Conn) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return done
}
