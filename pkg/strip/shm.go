package strip

import (
	"encoding/binary"
	"fmt"

	"github.com/fkcurrie/matricks-golang/internal/types"
	"github.com/fkcurrie/matricks-golang/pkg/mmap"
)

// Shared memory layout: a 16 byte header followed by four bytes per LED
// in strip order.
//
//	0  magic "MTRX"
//	4  width  (uint16, little endian)
//	6  height (uint16, little endian)
//	8  frame sequence number (uint32, little endian), bumped last
//	12 LED count (uint32, little endian)
const (
	shmMagic      = "MTRX"
	shmHeaderSize = 16
)

// SharedMemory exposes every rendered frame through a memory mapped file
type SharedMemory struct {
	mem  *mmap.MemoryMap
	leds []types.Color
	seq  uint32
}

// NewSharedMemory maps opts.Output and writes the header
func NewSharedMemory(opts Options) (*SharedMemory, error) {
	if opts.Output == "" {
		return nil, fmt.Errorf("shm driver needs an output path")
	}

	mem, err := mmap.NewFileMap(opts.Output, shmHeaderSize+opts.Count*4)
	if err != nil {
		return nil, err
	}

	header := make([]byte, shmHeaderSize)
	copy(header, shmMagic)
	binary.LittleEndian.PutUint16(header[4:], uint16(opts.Width))
	binary.LittleEndian.PutUint16(header[6:], uint16(opts.Height))
	binary.LittleEndian.PutUint32(header[12:], uint32(opts.Count))
	mem.WriteBytes(0, header)

	return &SharedMemory{
		mem:  mem,
		leds: make([]types.Color, opts.Count),
	}, nil
}

// LEDs returns the pixel buffer
func (s *SharedMemory) LEDs() []types.Color {
	return s.leds
}

// Render copies the buffer into the mapping and bumps the sequence
func (s *SharedMemory) Render() error {
	region := s.mem.Region()
	for i, c := range s.leds {
		copy(region[shmHeaderSize+i*4:], c[:])
	}
	s.seq++
	binary.LittleEndian.PutUint32(region[8:], s.seq)
	return s.mem.Sync()
}

// Close unmaps the file
func (s *SharedMemory) Close() error {
	return s.mem.Close()
}

func init() {
	Register("shm", func(opts Options) (Driver, error) {
		return NewSharedMemory(opts)
	})
}
