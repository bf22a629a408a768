package strip

import (
	"sync"

	"github.com/fkcurrie/matricks-golang/internal/types"
)

// Memory is a driver that keeps rendered frames in memory. It backs the
// null driver and is used to observe rendering in tests.
type Memory struct {
	mu        sync.Mutex
	leds      []types.Color
	history   [][]types.Color
	keep      int
	renders   int
	failures  int
	renderErr error
	closed    bool
}

// NewMemory creates an in-memory strip. keep is the number of most
// recent frames retained; zero keeps none.
func NewMemory(count, keep int) *Memory {
	return &Memory{
		leds: make([]types.Color, count),
		keep: keep,
	}
}

// LEDs returns the pixel buffer
func (m *Memory) LEDs() []types.Color {
	return m.leds
}

// Render records the current buffer
func (m *Memory) Render() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.renderErr != nil {
		m.failures++
		return m.renderErr
	}
	m.renders++
	if m.keep > 0 {
		m.history = append(m.history, append([]types.Color(nil), m.leds...))
		if len(m.history) > m.keep {
			m.history = m.history[len(m.history)-m.keep:]
		}
	}
	return nil
}

// Close marks the strip closed
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// SetRenderError makes every following Render fail with err, or
// succeed again when err is nil
func (m *Memory) SetRenderError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.renderErr = err
}

// Failures returns the number of failed renders
func (m *Memory) Failures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}

// Renders returns the number of successful renders
func (m *Memory) Renders() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.renders
}

// Last returns a copy of the most recently rendered frame
func (m *Memory) Last() []types.Color {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.history) == 0 {
		return nil
	}
	return append([]types.Color(nil), m.history[len(m.history)-1]...)
}

// History returns copies of the retained frames, oldest first
func (m *Memory) History() [][]types.Color {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]types.Color, len(m.history))
	for i, frame := range m.history {
		out[i] = append([]types.Color(nil), frame...)
	}
	return out
}

// Closed reports whether Close has been called
func (m *Memory) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
