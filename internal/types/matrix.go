package types

import (
	"fmt"
	"time"
)

const (
	// DefaultSignalFrequency is the WS281x data rate in Hz
	DefaultSignalFrequency = 800_000
	// DefaultDMAChannel is the DMA channel used to drive the strip
	DefaultDMAChannel = 10
	// DefaultGPIOPin is the BCM pin the strip data line is attached to
	DefaultGPIOPin = 10
)

// Color is a single LED value as supplied by plugins: three colour
// channels followed by an intensity channel, in strip byte order
// (blue, green, red, white).
type Color [4]uint8

// RGBA returns the red, green, blue and intensity channels
func (c Color) RGBA() (r, g, b, a uint8) {
	return c[2], c[1], c[0], c[3]
}

// Packed returns the colour as a 0xWWRRGGBB word
func (c Color) Packed() uint32 {
	return uint32(c[3])<<24 | uint32(c[2])<<16 | uint32(c[1])<<8 | uint32(c[0])
}

// FrameBuffer is a height x width grid of LED colours, indexed [y][x]
type FrameBuffer [][]Color

// NewFrameBuffer returns an all-zero frame of the given size
func NewFrameBuffer(width, height int) FrameBuffer {
	frame := make(FrameBuffer, height)
	for y := range frame {
		frame[y] = make([]Color, width)
	}
	return frame
}

// Clone returns a deep copy of the frame
func (f FrameBuffer) Clone() FrameBuffer {
	out := make(FrameBuffer, len(f))
	for y, row := range f {
		out[y] = append([]Color(nil), row...)
	}
	return out
}

// Clear sets every pixel to zero in place
func (f FrameBuffer) Clear() {
	for _, row := range f {
		for x := range row {
			row[x] = Color{}
		}
	}
}

// CheckSize returns an error unless the frame is exactly width x height
func (f FrameBuffer) CheckSize(width, height int) error {
	if len(f) != height {
		return fmt.Errorf("frame has %d rows, want %d", len(f), height)
	}
	for y, row := range f {
		if len(row) != width {
			return fmt.Errorf("frame row %d has %d columns, want %d", y, len(row), width)
		}
	}
	return nil
}

// MatrixConfiguration describes the physical matrix. It is handed to
// plugins during setup, so the JSON names are part of the plugin ABI.
type MatrixConfiguration struct {
	Width            int     `json:"width"`
	Height           int     `json:"height"`
	TargetFPS        float64 `json:"target_fps"`
	Serpentine       bool    `json:"serpentine"`
	Vertical         bool    `json:"vertical"`
	MirrorHorizontal bool    `json:"mirror_horizontal"`
	MirrorVertical   bool    `json:"mirror_vertical"`
	Brightness       uint8   `json:"brightness"`
	Magnification    float64 `json:"magnification"`

	// Passed through to the strip driver untouched
	GPIOPin         int `json:"-"`
	DMAChannel      int `json:"-"`
	SignalFrequency int `json:"-"`
}

// FrameInterval returns the target time between frames
func (c MatrixConfiguration) FrameInterval() time.Duration {
	if c.TargetFPS <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / c.TargetFPS)
}

// LEDCount returns the number of LEDs on the strip
func (c MatrixConfiguration) LEDCount() int {
	return c.Width * c.Height
}

// Validate checks that the configuration describes a usable matrix
func (c MatrixConfiguration) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid dimensions: %dx%d", c.Width, c.Height)
	}
	if c.TargetFPS <= 0 {
		return fmt.Errorf("target fps must be positive, got %v", c.TargetFPS)
	}
	return nil
}
