package transport

import (
	"errors"
	"sync"
)

// MockPort records every write as a separate frame.
type MockPort struct {
	mu     sync.Mutex
	frames [][]byte
	closed int

	// FailWrites makes Write return WriteErr when set.
	FailWrites bool
	WriteErr   error
	// MaxChunk limits how many bytes a single Write accepts (0 = unlimited).
	MaxChunk int
}

// NewMockPort creates an empty MockPort.
func NewMockPort() *MockPort {
	return &MockPort{}
}

func (m *MockPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites {
		if m.WriteErr != nil {
			return 0, m.WriteErr
		}
		return 0, errors.New("mock write failure")
	}
	n := len(p)
	if m.MaxChunk > 0 && n > m.MaxChunk {
		n = m.MaxChunk
	}
	frame := make([]byte, n)
	copy(frame, p[:n])
	m.frames = append(m.frames, frame)
	return n, nil
}

func (m *MockPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

// Frames returns a copy of the recorded writes.
func (m *MockPort) Frames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.frames))
	for i, f := range m.frames {
		out[i] = append([]byte(nil), f...)
	}
	return out
}

// Bytes returns every recorded byte concatenated.
func (m *MockPort) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []byte
	for _, f := range m.frames {
		out = append(out, f...)
	}
	return out
}

// CloseCount returns how many times Close was called on the port.
func (m *MockPort) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Reset forgets recorded frames.
func (m *MockPort) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = nil
}
