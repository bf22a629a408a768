// Package mmap maps regular files into memory so another process can
// observe what is written to them.
package mmap

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// MemoryMap represents a memory mapped file
type MemoryMap struct {
	file   *os.File
	size   int
	region []byte
}

// NewFileMap creates (or truncates) the file at path to size bytes and
// maps it shared and writable
func NewFileMap(path string, size int) (*MemoryMap, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid mapping size: %d", size)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %v", path, err)
	}

	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to size %s: %v", path, err)
	}

	region, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to mmap %s: %v", path, err)
	}

	return &MemoryMap{
		file:   f,
		size:   size,
		region: region,
	}, nil
}

// Close unmaps the region and closes the file
func (m *MemoryMap) Close() error {
	if err := unix.Munmap(m.region); err != nil {
		m.file.Close()
		return fmt.Errorf("failed to munmap: %v", err)
	}
	return m.file.Close()
}

// Region returns the mapped memory region
func (m *MemoryMap) Region() []byte {
	return m.region
}

// Size returns the size of the mapping in bytes
func (m *MemoryMap) Size() int {
	return m.size
}

// WriteBytes writes a byte slice to the memory region
func (m *MemoryMap) WriteBytes(offset int, data []byte) {
	copy(m.region[offset:], data)
}

// ReadBytes returns a copy of size bytes starting at offset
func (m *MemoryMap) ReadBytes(offset, size int) []byte {
	return append([]byte(nil), m.region[offset:offset+size]...)
}

// Sync flushes the region back to the file
func (m *MemoryMap) Sync() error {
	return unix.Msync(m.region, unix.MS_ASYNC)
}
