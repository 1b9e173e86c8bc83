package fc

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TransportKind identifies which physical channel carries MAVLink bytes.
type TransportKind string

const (
	TransportSerial TransportKind = "serial"
	TransportUDP    TransportKind = "udp"
	TransportTCP    TransportKind = "tcp"

	DefaultSerialBaud = 57600
)

// ConnectionConfig describes one link to the flight controller. It is
// treated as immutable once a connect attempt starts.
type ConnectionConfig struct {
	Transport TransportKind     `json:"connection_type"`
	Params    map[string]string `json:"params"`
	BaudRate  int               `json:"baudrate,omitempty"`
}

// Normalize lowercases the transport kind and fills the default serial
// baud rate, mirroring how the app config fills missing defaults.
func (c *ConnectionConfig) Normalize() {
	c.Transport = TransportKind(strings.ToLower(strings.TrimSpace(string(c.Transport))))
	if c.Transport == TransportSerial && c.BaudRate <= 0 {
		c.BaudRate = DefaultSerialBaud
	}
}

// Validate applies the transport-specific parameter rules. All failures
// wrap ErrInvalidConfig.
func (c ConnectionConfig) Validate() error {
	switch c.Transport {
	case TransportSerial:
		if strings.TrimSpace(c.Params["device"]) == "" {
			return fmt.Errorf("%w: serial connection requires 'device' parameter", ErrInvalidConfig)
		}
		if c.BaudRate <= 0 {
			return fmt.Errorf("%w: serial baud rate must be positive", ErrInvalidConfig)
		}
	case TransportUDP, TransportTCP:
		if strings.TrimSpace(c.Params["host"]) == "" {
			return fmt.Errorf("%w: %s connection requires 'host' parameter", ErrInvalidConfig, c.Transport)
		}
		if _, err := c.Port(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unsupported connection type %q", ErrInvalidConfig, c.Transport)
	}
	return nil
}

// Port parses the integer port parameter of a network config.
func (c ConnectionConfig) Port() (int, error) {
	raw := strings.TrimSpace(c.Params["port"])
	if raw == "" {
		return 0, fmt.Errorf("%w: %s connection requires integer 'port' parameter", ErrInvalidConfig, c.Transport)
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("%w: invalid port %q", ErrInvalidConfig, raw)
	}
	return port, nil
}

// Device returns the serial device path parameter.
func (c ConnectionConfig) Device() string {
	return strings.TrimSpace(c.Params["device"])
}

// Target is a short human-readable connection target for logs and status.
func (c ConnectionConfig) Target() string {
	switch c.Transport {
	case TransportSerial:
		return c.Device()
	case TransportUDP, TransportTCP:
		return c.Params["host"] + ":" + c.Params["port"]
	default:
		return ""
	}
}

func (c ConnectionConfig) clone() ConnectionConfig {
	out := c
	out.Params = make(map[string]string, len(c.Params))
	for k, v := range c.Params {
		out.Params[k] = v
	}
	return out
}

// ConnectionState is the durable record of the last connection. It is
// loaded once at process startup and rewritten on every connect and
// disconnect transition.
type ConnectionState struct {
	Connected        bool
	UserDisconnected bool
	Config           *ConnectionConfig
	LastSuccess      time.Time
}
