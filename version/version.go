package version

import (
	"runtime"
	"strings"
	"sync"
)

const Version = "1.0.0"

var (
	vsnOnce sync.Once
	vsn     string
)

// GoVersion reports the Go version, in a format that is consumable by metrics
// tools.
func GoVersion() string {
	vsnOnce.Do(func() {
		vsn = strings.TrimPrefix(runtime.Version(), "go")
	})
	return vsn
}
