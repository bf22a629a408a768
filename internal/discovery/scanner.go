// Package discovery finds the plugin modules to run
package discovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Extension is the file extension of plugin modules
const Extension = ".wasm"

var (
	// ErrInvalidSeedPath is returned when the configured plugin path
	// cannot be used at all
	ErrInvalidSeedPath = errors.New("invalid plugin path")
	// ErrInvalidPluginPath is returned when a single plugin cannot be read
	ErrInvalidPluginPath = errors.New("invalid plugin file")
)

// Scanner lists plugin modules below a seed path. The seed is either a
// single module or a directory searched recursively.
type Scanner struct {
	seed string
}

// NewScanner creates a scanner for the given seed path
func NewScanner(seed string) *Scanner {
	return &Scanner{
		seed: seed,
	}
}

// List returns the plugin paths in lexical order. The seed is read
// again on every call so plugins can be swapped between loops.
func (s *Scanner) List(ctx context.Context) ([]string, error) {
	if s.seed == "" {
		return nil, fmt.Errorf("%w: no path given", ErrInvalidSeedPath)
	}

	info, err := os.Stat(s.seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeedPath, err)
	}
	if !info.IsDir() {
		if !strings.EqualFold(filepath.Ext(info.Name()), Extension) {
			return nil, fmt.Errorf("%w: %s is not a %s file", ErrInvalidSeedPath, s.seed, Extension)
		}
		return []string{s.seed}, nil
	}

	var paths []string
	err = filepath.WalkDir(s.seed, func(path string, d fs.DirEntry, err error) error {
		// Check if context is cancelled
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == s.seed {
				return err
			}
			// Unreadable subdirectories are left out
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !isPlugin(d.Name()) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeedPath, err)
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no %s files in %s", ErrInvalidSeedPath, Extension, s.seed)
	}
	sort.Strings(paths)
	return paths, nil
}

// Read returns the contents of one plugin module
func (s *Scanner) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPluginPath, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrInvalidPluginPath, path)
	}
	return data, nil
}

// isPlugin reports whether a file name looks like a plugin module
func isPlugin(name string) bool {
	return strings.EqualFold(filepath.Ext(name), Extension) && !strings.HasPrefix(name, ".")
}
