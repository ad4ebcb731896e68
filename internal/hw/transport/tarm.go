package transport

import (
	"fmt"

	"github.com/tarm/serial"
)

// openTarm opens device at baud using tarm/serial. Some USB-serial adapters
// only behave with this backend.
func openTarm(device string, baud int) (Port, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name: device,
		Baud: baud,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", device, err)
	}
	return port, nil
}
