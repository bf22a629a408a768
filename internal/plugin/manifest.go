// Package plugin hosts sandboxed WebAssembly plugins: it builds their
// capability manifest, delivers the matrix configuration to them and
// decodes their update responses.
package plugin

import (
	"path/filepath"
	"strings"
	"time"
)

// Manifest declares what a single plugin instance is allowed to do
type Manifest struct {
	// Name identifies the plugin in log output
	Name string
	// Module holds the compiled WebAssembly bytes
	Module []byte
	// AllowedHosts lists the hostnames reachable over HTTP
	AllowedHosts []string
	// Paths lists the host directories mounted into the sandbox
	Paths []PathMap
	// Config holds key/value configuration readable by the plugin
	Config map[string]string
	// Timeout bounds every call into the plugin. Zero means no limit.
	Timeout time.Duration
}

// NewManifest creates a manifest with no capabilities
func NewManifest(name string, module []byte) *Manifest {
	return &Manifest{
		Name:   name,
		Module: module,
		Config: map[string]string{},
	}
}

// WithAllowedHosts grants network access to the given hosts. Blank
// entries are skipped.
func (m *Manifest) WithAllowedHosts(hosts ...string) *Manifest {
	for _, host := range hosts {
		host = strings.TrimSpace(host)
		if host == "" {
			continue
		}
		m.AllowedHosts = append(m.AllowedHosts, host)
	}
	return m
}

// WithPaths mounts the given path maps
func (m *Manifest) WithPaths(paths ...PathMap) *Manifest {
	m.Paths = append(m.Paths, paths...)
	return m
}

// allowedPaths returns the path grants keyed by host path, which is the
// shape the runtime expects
func (m *Manifest) allowedPaths() map[string]string {
	if len(m.Paths) == 0 {
		return nil
	}
	paths := make(map[string]string, len(m.Paths))
	for _, p := range m.Paths {
		paths[p.To] = p.From
	}
	return paths
}

// NameFromPath returns the plugin name shown in logs for a plugin file
func NameFromPath(path string) string {
	name := filepath.Base(path)
	if name == "." || name == string(filepath.Separator) {
		return path
	}
	return name
}
