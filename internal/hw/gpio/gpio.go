// Package gpio drives the motor-driver enable lines. The motors themselves are
// commanded over the serial link; GPIO only switches holding torque on and off.
package gpio

import (
	"sync"

	"github.com/cjeanneret/BeamGo/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "HIGH"
	}
	return "LOW"
}

// Driver is the output-only GPIO surface used by the motors.
// Enable lines are active LOW: Low = driver enabled, High = freewheel.
type Driver interface {
	SetupOutput(pin int) error
	Write(pin int, level Level) error
	Close() error
}

// NewDriver returns a MockDriver when mock is true, otherwise the go-rpio
// backed driver.
func NewDriver(mock bool) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return NewMockDriver(), nil
	}
	return NewRPiDriver()
}

// Write records one call to MockDriver.Write.
type Write struct {
	Pin   int
	Level Level
}

// MockDriver logs actions and records writes. Used off-target and in tests.
type MockDriver struct {
	mu     sync.Mutex
	setup  map[int]bool
	writes []Write
	closed bool
}

// NewMockDriver creates an empty MockDriver.
func NewMockDriver() *MockDriver {
	return &MockDriver{setup: make(map[int]bool)}
}

func (m *MockDriver) SetupOutput(pin int) error {
	debug.GPIO("SetupOutput", pin, nil)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setup[pin] = true
	return nil
}

func (m *MockDriver) Write(pin int, level Level) error {
	debug.GPIO("Write", pin, level)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, Write{Pin: pin, Level: level})
	return nil
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Writes returns a copy of every recorded write, in order.
func (m *MockDriver) Writes() []Write {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Write, len(m.writes))
	copy(out, m.writes)
	return out
}

// IsSetup reports whether SetupOutput was called for pin.
func (m *MockDriver) IsSetup(pin int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setup[pin]
}

// Closed reports whether Close was called.
func (m *MockDriver) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
