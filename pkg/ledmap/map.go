// Package ledmap maps logical matrix coordinates onto positions along a
// physically wired LED strip.
package ledmap

import (
	"fmt"
	"image"
)

// Wiring describes how the strip is laid out behind the matrix
type Wiring struct {
	// Serpentine strips alternate direction on every run
	Serpentine bool
	// Vertical strips run column by column instead of row by row
	Vertical bool
	// MirrorHorizontal reverses every row
	MirrorHorizontal bool
	// MirrorVertical reverses the order of the rows
	MirrorVertical bool
}

// Map is an immutable lookup table from (x, y) to strip index
type Map struct {
	width  int
	height int
	table  [][]int
}

// Build computes the strip index of every matrix pixel.
//
// The steps run in a fixed order and each one sees the result of the
// previous: build transposed when vertical, fill row-major, reverse the
// even runs when serpentine, transpose back when vertical, then apply
// the vertical and horizontal mirrors.
func Build(width, height int, wiring Wiring) (*Map, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions: %dx%d", width, height)
	}

	constructWidth, constructHeight := width, height
	if wiring.Vertical {
		constructWidth, constructHeight = height, width
	}

	table := make([][]int, constructHeight)
	for y := range table {
		table[y] = make([]int, constructWidth)
		for x := range table[y] {
			table[y][x] = y*constructWidth + x
		}
	}

	if wiring.Serpentine {
		for y, row := range table {
			if y%2 == 0 {
				reverse(row)
			}
		}
	}

	if wiring.Vertical {
		transposed := make([][]int, height)
		for y := range transposed {
			transposed[y] = make([]int, width)
			for x := range transposed[y] {
				transposed[y][x] = table[x][y]
			}
		}
		table = transposed
	}

	if wiring.MirrorVertical {
		for i, j := 0, len(table)-1; i < j; i, j = i+1, j-1 {
			table[i], table[j] = table[j], table[i]
		}
	}

	if wiring.MirrorHorizontal {
		for _, row := range table {
			reverse(row)
		}
	}

	return &Map{
		width:  width,
		height: height,
		table:  table,
	}, nil
}

// Get returns the strip index of the pixel at (x, y). Coordinates
// outside the matrix are a programming error and panic.
func (m *Map) Get(x, y int) int {
	if x < 0 || x >= m.width || y < 0 || y >= m.height {
		panic(fmt.Sprintf("ledmap: coordinates out of bounds: (%d, %d)", x, y))
	}
	return m.table[y][x]
}

// GetDimensions returns the dimensions of the mapped matrix
func (m *Map) GetDimensions() (width, height int) {
	return m.width, m.height
}

// Len returns the number of LEDs on the strip
func (m *Map) Len() int {
	return m.width * m.height
}

// Table returns a copy of the lookup table, indexed [y][x]
func (m *Map) Table() [][]int {
	out := make([][]int, len(m.table))
	for y, row := range m.table {
		out[y] = append([]int(nil), row...)
	}
	return out
}

// Positions returns the matrix coordinate of every strip index
func (m *Map) Positions() []image.Point {
	positions := make([]image.Point, m.Len())
	for y, row := range m.table {
		for x, index := range row {
			positions[index] = image.Pt(x, y)
		}
	}
	return positions
}

func reverse(row []int) {
	for i, j := 0, len(row)-1; i < j; i, j = i+1, j-1 {
		row[i], row[j] = row[j], row[i]
	}
}
