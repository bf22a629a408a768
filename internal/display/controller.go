// Package display owns the shared frame buffer and the goroutine that
// streams it to the LED strip.
package display

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/fkcurrie/matricks-golang/internal/types"
	"github.com/fkcurrie/matricks-golang/pkg/ledmap"
	"github.com/fkcurrie/matricks-golang/pkg/strip"
)

var (
	// ErrAlreadyRunning describes a Start on a running controller, which
	// is ignored
	ErrAlreadyRunning = errors.New("matrix update thread already exists")
	// ErrNotRunning is returned when the render goroutine is not alive
	ErrNotRunning = errors.New("matrix update thread is not running")
	// ErrStopping is returned by Start while a previous stop is incomplete
	ErrStopping = errors.New("matrix update thread is still stopping")
	// ErrFrameSize is returned for frames that do not match the matrix
	ErrFrameSize = errors.New("frame does not match matrix dimensions")
	// ErrDriverInit is returned when the strip driver cannot be opened
	ErrDriverInit = errors.New("failed to create LED controller")
)

// DefaultMaxRenderFailures is how many renders in a row may fail before
// the render goroutine gives up
const DefaultMaxRenderFailures = 30

// Phase is the lifecycle state of the render goroutine
type Phase int32

const (
	// NotStarted is the phase before the first Start
	NotStarted Phase = iota
	// Starting covers opening the driver
	Starting
	// Running accepts frame updates
	Running
	// Stopping is set by Stop until the goroutine has exited
	Stopping
	// Stopped means the strip is cleared and the driver closed
	Stopped
)

func (p Phase) String() string {
	switch p {
	case NotStarted:
		return "not started"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("phase(%d)", int32(p))
	}
}

// Opener creates the strip driver from the options the controller
// derives from its configuration
type Opener func(opts strip.Options) (strip.Driver, error)

// Controller owns the frame buffer shared with the render goroutine
type Controller struct {
	cfg     types.MatrixConfiguration
	mapping *ledmap.Map
	open    Opener
	log     *log.Logger

	// MaxRenderFailures bounds consecutive render failures. Set before Start.
	MaxRenderFailures int

	mu    sync.Mutex
	state types.FrameBuffer

	// phase is written by the render goroutine once it exists; cont is
	// written only by Start and Stop
	phase atomic.Int32
	cont  atomic.Bool

	lifeMu sync.Mutex
	wake   chan struct{}
	done   chan struct{}
}

// NewController creates a controller with a zeroed frame buffer
func NewController(cfg types.MatrixConfiguration, open Opener, logger *log.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mapping, err := ledmap.Build(cfg.Width, cfg.Height, ledmap.Wiring{
		Serpentine:       cfg.Serpentine,
		Vertical:         cfg.Vertical,
		MirrorHorizontal: cfg.MirrorHorizontal,
		MirrorVertical:   cfg.MirrorVertical,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build matrix map: %w", err)
	}

	return &Controller{
		cfg:               cfg,
		mapping:           mapping,
		open:              open,
		log:               logger.WithPrefix("matrix"),
		MaxRenderFailures: DefaultMaxRenderFailures,
		state:             types.NewFrameBuffer(cfg.Width, cfg.Height),
	}, nil
}

// Phase returns the current lifecycle phase
func (c *Controller) Phase() Phase {
	return Phase(c.phase.Load())
}

// Alive reports whether frames are currently accepted
func (c *Controller) Alive() bool {
	return c.Phase() == Running
}

// Frame returns a copy of the shared frame buffer
func (c *Controller) Frame() types.FrameBuffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Start opens the strip driver on a new render goroutine. It returns
// once the goroutine is running or has failed to open the driver.
// Starting a running controller does nothing.
func (c *Controller) Start() error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	switch c.Phase() {
	case Running:
		c.log.Warn("Ignoring start command.", "reason", ErrAlreadyRunning)
		return nil
	case Stopping:
		return ErrStopping
	}

	c.cont.Store(true)
	c.phase.Store(int32(Starting))
	ready := make(chan error, 1)
	c.wake = make(chan struct{})
	c.done = make(chan struct{})

	go c.run(ready, c.wake, c.done)

	return <-ready
}

// Stop asks the render goroutine to finish and waits until it has
// cleared the strip. ctx bounds the wait; pass context.Background() to
// wait indefinitely.
func (c *Controller) Stop(ctx context.Context) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	switch c.Phase() {
	case Running, Stopping:
	default:
		c.log.Warn("No update thread exists to stop.")
		return ErrNotRunning
	}

	c.phase.CompareAndSwap(int32(Running), int32(Stopping))
	c.cont.Store(false)
	if c.wake != nil {
		close(c.wake)
		c.wake = nil
	}

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for matrix update thread: %w", ctx.Err())
	}
}

// Update replaces the shared frame buffer. Frames are rejected unless
// the render goroutine is running.
func (c *Controller) Update(frame types.FrameBuffer) error {
	if !c.Alive() {
		return ErrNotRunning
	}
	if err := frame.CheckSize(c.cfg.Width, c.cfg.Height); err != nil {
		return fmt.Errorf("%w: %v", ErrFrameSize, err)
	}

	next := frame.Clone()
	c.mu.Lock()
	c.state = next
	c.mu.Unlock()
	return nil
}

func (c *Controller) options() strip.Options {
	return strip.Options{
		Count:         c.cfg.LEDCount(),
		GPIOPin:       c.cfg.GPIOPin,
		DMAChannel:    c.cfg.DMAChannel,
		Frequency:     c.cfg.SignalFrequency,
		Brightness:    c.cfg.Brightness,
		Width:         c.cfg.Width,
		Height:        c.cfg.Height,
		Positions:     c.mapping.Positions(),
		Magnification: c.cfg.Magnification,
		PowerLine:     -1,
	}
}

// run is the render goroutine
func (c *Controller) run(ready chan<- error, wake <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	driver, err := c.open(c.options())
	if err != nil {
		c.log.Error("Failed to create LED controller.")
		c.log.Debug("Failed with the following error", "err", err)
		c.phase.Store(int32(Stopped))
		ready <- fmt.Errorf("%w: %v", ErrDriverInit, err)
		return
	}

	c.phase.Store(int32(Running))
	ready <- nil

	interval := c.cfg.FrameInterval()
	if interval <= 0 {
		interval = time.Second / 30
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		if err := c.render(driver); err != nil {
			failures++
			c.log.Error("Failed to push plugin changes to matrix.")
			c.log.Debug("Failed with the following error", "err", err, "consecutive", failures)
			if c.MaxRenderFailures > 0 && failures >= c.MaxRenderFailures {
				c.log.Error("Too many failed renders, closing matrix update thread.")
				break
			}
		} else {
			failures = 0
		}

		if !c.cont.Load() {
			c.log.Info("Closing matrix update thread.")
			break
		}

		select {
		case <-ticker.C:
		case <-wake:
		}
	}

	c.phase.CompareAndSwap(int32(Running), int32(Stopping))

	if err := strip.Clear(driver); err != nil {
		c.log.Warn("Failed to clear matrix.")
		c.log.Debug("Failed with the following error", "err", err)
	}
	if err := driver.Close(); err != nil {
		c.log.Warn("Failed to close LED controller.")
		c.log.Debug("Failed with the following error", "err", err)
	}

	c.mu.Lock()
	c.state.Clear()
	c.mu.Unlock()

	c.phase.Store(int32(Stopped))
}

// render maps the latest frame onto the strip and pushes it
func (c *Controller) render(driver strip.Driver) error {
	c.mu.Lock()
	frame := c.state.Clone()
	c.mu.Unlock()

	leds := driver.LEDs()
	for y, row := range frame {
		for x, color := range row {
			leds[c.mapping.Get(x, y)] = color
		}
	}
	return driver.Render()
}
