package fc

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
)

// Session is one open MAVLink exchange over a transport. Receive returns
// (nil, nil) when the wait times out with no frame; that is not an error.
type Session interface {
	Receive(timeout time.Duration) (any, error)
	Close() error
}

// Dialer opens a Session for a validated ConnectionConfig.
type Dialer interface {
	Dial(cfg ConnectionConfig) (Session, error)
}

// groundStationSystemID is the conventional MAVLink system id for a GCS.
const groundStationSystemID = 255

// MavlinkDialer opens gomavlib nodes for serial, UDP and TCP endpoints.
type MavlinkDialer struct {
	logger *slog.Logger
}

func NewMavlinkDialer(logger *slog.Logger) *MavlinkDialer {
	return &MavlinkDialer{logger: logger}
}

func (d *MavlinkDialer) Dial(cfg ConnectionConfig) (Session, error) {
	endpoint, err := endpointFor(cfg)
	if err != nil {
		return nil, err
	}

	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints:   []gomavlib.EndpointConf{endpoint},
		Dialect:     common.Dialect,
		OutVersion:  gomavlib.V2,
		OutSystemID: groundStationSystemID,
	})
	if err != nil {
		return nil, newTransportError("open", err)
	}

	d.logger.Debug("mavlink node opened", "transport", cfg.Transport, "target", cfg.Target())
	return &mavlinkSession{
		logger: d.logger,
		node:   node,
		events: node.Events(),
	}, nil
}

func endpointFor(cfg ConnectionConfig) (gomavlib.EndpointConf, error) {
	switch cfg.Transport {
	case TransportSerial:
		return gomavlib.EndpointSerial{
			Device: cfg.Device(),
			Baud:   cfg.BaudRate,
		}, nil
	case TransportUDP:
		port, err := cfg.Port()
		if err != nil {
			return nil, err
		}
		return gomavlib.EndpointUDPClient{
			Address: net.JoinHostPort(cfg.Params["host"], fmt.Sprintf("%d", port)),
		}, nil
	case TransportTCP:
		port, err := cfg.Port()
		if err != nil {
			return nil, err
		}
		return gomavlib.EndpointTCPClient{
			Address: net.JoinHostPort(cfg.Params["host"], fmt.Sprintf("%d", port)),
		}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported connection type %q", ErrInvalidConfig, cfg.Transport)
	}
}

// mavlinkSession adapts the gomavlib event channel to the bounded-receive
// shape the read loop wants.
type mavlinkSession struct {
	logger *slog.Logger
	node   *gomavlib.Node
	events <-chan gomavlib.Event
}

func (s *mavlinkSession) Receive(timeout time.Duration) (any, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			return nil, nil
		case ev, ok := <-s.events:
			if !ok {
				return nil, newTransportError("read", errors.New("event channel closed"))
			}
			switch e := ev.(type) {
			case *gomavlib.EventFrame:
				return e.Message(), nil
			case *gomavlib.EventChannelOpen:
				s.logger.Debug("mavlink channel open", "channel", fmt.Sprintf("%v", e.Channel))
			case *gomavlib.EventChannelClose:
				return nil, newTransportError("read", fmt.Errorf("channel closed: %v", e.Channel))
			case *gomavlib.EventParseError:
				// Stray bytes on the line are normal during autopilot
				// boot; skip the frame and keep reading.
				s.logger.Debug("mavlink parse error", "error", e.Error)
			}
		}
	}
}

func (s *mavlinkSession) Close() error {
	s.node.Close()
	return nil
}
