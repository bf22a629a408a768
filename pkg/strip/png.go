package strip

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fkcurrie/matricks-golang/internal/types"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// ledGlyph is the shape drawn for every simulated LED
const ledGlyph = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 10 10">
<circle cx="5" cy="5" r="4.2" fill="#ffffff"/>
</svg>`

// snapshotInterval limits how often the PNG file is rewritten
const snapshotInterval = time.Second

// Simulated draws the matrix into an image, one glyph per LED, and
// periodically writes it to a PNG file
type Simulated struct {
	opts      Options
	leds      []types.Color
	cell      int
	glyph     *image.RGBA
	canvas    *image.RGBA
	lastWrite time.Time
	mu        sync.Mutex
}

// NewSimulated creates a simulated matrix scaled by opts.Magnification
func NewSimulated(opts Options) (*Simulated, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid dimensions: %dx%d", opts.Width, opts.Height)
	}

	cell := int(opts.Magnification)
	if cell < 1 {
		cell = 10
	}

	glyph, err := renderGlyph(ledGlyph, cell)
	if err != nil {
		return nil, err
	}

	return &Simulated{
		opts:   opts,
		leds:   make([]types.Color, opts.Count),
		cell:   cell,
		glyph:  glyph,
		canvas: image.NewRGBA(image.Rect(0, 0, opts.Width*cell, opts.Height*cell)),
	}, nil
}

// renderGlyph rasterizes an SVG into a size x size image used as a mask
func renderGlyph(svg string, size int) (*image.RGBA, error) {
	icon, err := oksvg.ReadIconStream(strings.NewReader(svg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse LED glyph: %v", err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	glyph := image.NewRGBA(image.Rect(0, 0, size, size))
	scanner := rasterx.NewScannerGV(size, size, glyph, glyph.Bounds())
	icon.Draw(rasterx.NewDasher(size, size, scanner), 1)
	return glyph, nil
}

// LEDs returns the pixel buffer
func (s *Simulated) LEDs() []types.Color {
	return s.leds
}

// Render redraws the canvas and writes a snapshot when one is due
func (s *Simulated) Render() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.draw()
	if s.opts.Output == "" || time.Since(s.lastWrite) < snapshotInterval {
		return nil
	}
	return s.writeSnapshot()
}

func (s *Simulated) draw() {
	draw.Draw(s.canvas, s.canvas.Bounds(), image.Black, image.Point{}, draw.Src)
	for i, c := range s.leds {
		p := positionOf(s.opts, i)
		r, g, b, _ := c.RGBA()
		cell := image.Rect(p.X*s.cell, p.Y*s.cell, (p.X+1)*s.cell, (p.Y+1)*s.cell)
		draw.DrawMask(s.canvas, cell, image.NewUniform(color.RGBA{r, g, b, 255}), image.Point{}, s.glyph, image.Point{}, draw.Over)
	}
}

func (s *Simulated) writeSnapshot() error {
	tmp, err := os.CreateTemp(filepath.Dir(s.opts.Output), ".matricks-*.png")
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %v", err)
	}
	if err := png.Encode(tmp, s.canvas); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to encode snapshot: %v", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write snapshot: %v", err)
	}
	if err := os.Rename(tmp.Name(), s.opts.Output); err != nil {
		return fmt.Errorf("failed to replace snapshot: %v", err)
	}
	s.lastWrite = time.Now()
	return nil
}

// Image returns a copy of the last drawn canvas
func (s *Simulated) Image() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := image.NewRGBA(s.canvas.Bounds())
	copy(out.Pix, s.canvas.Pix)
	return out
}

// Close writes a final snapshot
func (s *Simulated) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opts.Output == "" {
		return nil
	}
	s.draw()
	return s.writeSnapshot()
}

func init() {
	Register("png", func(opts Options) (Driver, error) {
		return NewSimulated(opts)
	})
}
