// Package strip contains the output devices a matrix frame can be
// rendered to: the WS281x hardware strip and several simulated strips.
package strip

import (
	"fmt"
	"image"
	"sort"
	"sync"

	"github.com/fkcurrie/matricks-golang/internal/types"
)

// Driver renders a linear buffer of LED colours to an output device
type Driver interface {
	// LEDs returns the mutable pixel buffer, one entry per strip index
	LEDs() []types.Color
	// Render pushes the current buffer to the device
	Render() error
	// Close releases the device
	Close() error
}

// Options holds everything a driver may need to open its device. Each
// driver ignores the fields it has no use for.
type Options struct {
	Count      int
	GPIOPin    int
	DMAChannel int
	Frequency  int
	Brightness uint8

	// Matrix geometry for simulated output
	Width         int
	Height        int
	Positions     []image.Point
	Magnification float64

	// Output is a file path or URL, depending on the driver
	Output string

	// PowerChip and PowerLine name a GPIO line held high while the
	// driver is open. A negative line disables it.
	PowerChip string
	PowerLine int
}

// Factory opens a driver
type Factory func(opts Options) (Driver, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a driver available to Open under the given kind
func Register(kind string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = factory
}

// Kinds returns the registered driver kinds in sorted order
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(registry))
	for kind := range registry {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// Open creates a driver of the given kind
func Open(kind string, opts Options) (Driver, error) {
	registryMu.RLock()
	factory, ok := registry[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown strip driver %q", kind)
	}
	if opts.Count <= 0 {
		return nil, fmt.Errorf("invalid LED count: %d", opts.Count)
	}

	driver, err := factory(opts)
	if err != nil {
		return nil, err
	}
	if opts.PowerLine < 0 || opts.PowerChip == "" {
		return driver, nil
	}

	powered, err := withPower(driver, opts.PowerChip, opts.PowerLine)
	if err != nil {
		driver.Close()
		return nil, err
	}
	return powered, nil
}

// Clear sets every LED to zero and renders the result
func Clear(d Driver) error {
	leds := d.LEDs()
	for i := range leds {
		leds[i] = types.Color{}
	}
	return d.Render()
}

// positionOf returns where strip index i sits on the matrix, falling
// back to row-major order when no positions were supplied
func positionOf(opts Options, i int) image.Point {
	if i < len(opts.Positions) {
		return opts.Positions[i]
	}
	width := opts.Width
	if width <= 0 {
		width = opts.Count
	}
	return image.Pt(i%width, i/width)
}

func init() {
	Register("null", func(opts Options) (Driver, error) {
		return NewMemory(opts.Count, 0), nil
	})
}
