package fc

import (
	"fmt"
	"sort"

	"go.bug.st/serial"
)

// ListSerialPorts enumerates candidate serial devices for the connect
// page. An empty list is not an error.
func ListSerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	sort.Strings(ports)
	return ports, nil
}
