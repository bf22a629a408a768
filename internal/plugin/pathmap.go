package plugin

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
)

// ErrMalformedPathMap is returned for path directives without a usable
// separator
var ErrMalformedPathMap = errors.New("malformed path map")

// PathMap grants a plugin access to a host directory under a path
// inside its sandbox
type PathMap struct {
	// From is the path seen by the plugin
	From string
	// To is the directory on the host
	To string
}

// ParsePathMap parses a "SANDBOX_PATH>HOST_PATH" directive. The string is
// split on the first '>' so host paths may contain further '>' characters.
func ParsePathMap(directive string) (PathMap, error) {
	from, to, ok := strings.Cut(directive, ">")
	if !ok {
		return PathMap{}, fmt.Errorf("%w: %q has no '>' separator", ErrMalformedPathMap, directive)
	}
	if from == "" || to == "" {
		return PathMap{}, fmt.Errorf("%w: %q has an empty path", ErrMalformedPathMap, directive)
	}
	return PathMap{From: from, To: to}, nil
}

// ParsePathMaps parses every directive, logging and dropping the ones
// that are malformed
func ParsePathMaps(directives []string, logger *log.Logger) []PathMap {
	maps := make([]PathMap, 0, len(directives))
	for _, directive := range directives {
		m, err := ParsePathMap(directive)
		if err != nil {
			logger.Warn("Ignoring invalid path map.", "directive", directive)
			logger.Debug("Failed with the following error", "err", err)
			continue
		}
		maps = append(maps, m)
	}
	return maps
}

func (m PathMap) String() string {
	return m.From + ">" + m.To
}
