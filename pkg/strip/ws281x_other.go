//go:build !(linux && cgo && (arm || arm64))

package strip

import (
	"fmt"
	"runtime"
)

func init() {
	Register("ws281x", func(opts Options) (Driver, error) {
		return nil, fmt.Errorf("ws281x driver is not available on %s/%s", runtime.GOOS, runtime.GOARCH)
	})
}
