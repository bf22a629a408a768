// Package gpio drives single GPIO output lines through the Linux GPIO
// character device.
package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// Pin is a requested GPIO output line
type Pin struct {
	chip   string
	offset int
	line   *gpiocdev.Line
	mu     sync.Mutex
}

// NewPin requests the line at offset on chip as an output, initially low
func NewPin(chip string, offset int) (*Pin, error) {
	line, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("failed to request line %s:%d: %v", chip, offset, err)
	}

	return &Pin{
		chip:   chip,
		offset: offset,
		line:   line,
	}, nil
}

// SetValue sets the line to 0 or 1
func (p *Pin) SetValue(value int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.line.SetValue(value); err != nil {
		return fmt.Errorf("failed to set line %s:%d to %d: %v", p.chip, p.offset, value, err)
	}
	return nil
}

// Close drives the line low and releases it
func (p *Pin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.line.SetValue(0)
	return p.line.Close()
}
