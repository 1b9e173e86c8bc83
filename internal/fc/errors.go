package fc

import (
	"errors"
	"fmt"
	"strings"
)

// Setup-time failure classes surfaced to API callers. Run-time read-loop
// failures never use these; they are absorbed by the error counter.
var (
	ErrInvalidConfig    = errors.New("invalid connection config")
	ErrDeviceNotFound   = errors.New("serial device not found")
	ErrPermissionDenied = errors.New("serial device permission denied")
)

// TransportError wraps an I/O failure on an open or opening link.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func newTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

// indicatesDeviceGone reports whether an error text looks like the
// underlying device vanished (cable pulled, radio powered off).
func indicatesDeviceGone(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, keyword := range []string{"no data", "disconnected", "channel closed", "input/output error"} {
		if strings.Contains(msg, keyword) {
			return true
		}
	}
	return false
}
