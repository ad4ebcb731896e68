// Package transport owns the serial link shared by both motor controllers.
package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/cjeanneret/BeamGo/internal/debug"
)

// ErrClosed is returned by WriteBytes after Close.
var ErrClosed = errors.New("transport: closed")

// Port is the raw byte sink behind a Transport.
type Port interface {
	io.Writer
	io.Closer
}

// Backend names accepted by Open.
const (
	BackendBugst = "bugst"
	BackendTarm  = "tarm"
	BackendMock  = "mock"
)

// Config selects and configures a serial backend.
type Config struct {
	Backend string
	Device  string
	Baud    int
}

// Transport writes whole command frames to a Port. Frames never interleave:
// each WriteBytes holds the lock until every byte is written.
type Transport struct {
	mu     sync.Mutex
	port   Port
	closed bool
}

// New wraps an already opened port.
func New(p Port) *Transport {
	return &Transport{port: p}
}

// Open opens the configured backend. The mock backend returns a MockPort that
// records frames, so the whole stack can run without hardware.
func Open(cfg Config) (*Transport, error) {
	var (
		p   Port
		err error
	)
	switch cfg.Backend {
	case "", BackendBugst:
		p, err = openBugst(cfg.Device, cfg.Baud)
	case BackendTarm:
		p, err = openTarm(cfg.Device, cfg.Baud)
	case BackendMock:
		debug.Info("Using MOCK serial transport (development mode)")
		p = NewMockPort()
	default:
		return nil, fmt.Errorf("unknown serial backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	debug.Verbose("Serial transport open: backend=%s device=%s baud=%d", cfg.Backend, cfg.Device, cfg.Baud)
	return New(p), nil
}

// WriteBytes writes buf in full. Short writes are retried until the frame is
// complete or the port reports an error.
func (t *Transport) WriteBytes(buf []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}

	debug.Serial("TX", buf)
	for off := 0; off < len(buf); {
		n, err := t.port.Write(buf[off:])
		if err != nil {
			return fmt.Errorf("serial write: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("serial write: %w", io.ErrShortWrite)
		}
		off += n
	}
	return nil
}

// Close releases the port. Calling it more than once is a no-op.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	debug.Trace("Serial transport closed")
	return t.port.Close()
}

// Port returns the underlying port.
func (t *Transport) Port() Port {
	return t.port
}
