//go:build linux && cgo && (arm || arm64)

package strip

import (
	"fmt"

	"github.com/fkcurrie/matricks-golang/internal/types"
	ws2811 "github.com/rpi-ws281x/rpi-ws281x-go"
)

// WS281x drives a WS2812 strip through the rpi_ws281x DMA engine
type WS281x struct {
	dev  *ws2811.WS2811
	leds []types.Color
}

// NewWS281x opens the strip described by opts
func NewWS281x(opts Options) (*WS281x, error) {
	// Create WS2811 configuration
	ws2811Config := ws2811.DefaultOptions
	ws2811Config.Frequency = opts.Frequency
	ws2811Config.DmaNum = opts.DMAChannel
	ws2811Config.Channels[0].Brightness = int(opts.Brightness)
	ws2811Config.Channels[0].GpioPin = opts.GPIOPin
	ws2811Config.Channels[0].LedCount = opts.Count
	ws2811Config.Channels[0].StripeType = ws2811.WS2811StripGRB

	dev, err := ws2811.MakeWS2811(&ws2811Config)
	if err != nil {
		return nil, fmt.Errorf("failed to create WS2811: %v", err)
	}

	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize WS2811: %v", err)
	}

	return &WS281x{
		dev:  dev,
		leds: make([]types.Color, opts.Count),
	}, nil
}

// LEDs returns the pixel buffer
func (s *WS281x) LEDs() []types.Color {
	return s.leds
}

// Render copies the buffer into DMA memory and waits for the transfer
func (s *WS281x) Render() error {
	out := s.dev.Leds(0)
	for i, c := range s.leds {
		out[i] = c.Packed()
	}
	if err := s.dev.Render(); err != nil {
		return fmt.Errorf("failed to render WS2811: %v", err)
	}
	if err := s.dev.Wait(); err != nil {
		return fmt.Errorf("failed to wait for WS2811: %v", err)
	}
	return nil
}

// Close shuts down the DMA engine
func (s *WS281x) Close() error {
	if s.dev != nil {
		s.dev.Fini()
	}
	return nil
}

func init() {
	Register("ws281x", func(opts Options) (Driver, error) {
		return NewWS281x(opts)
	})
}
