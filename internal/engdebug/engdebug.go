//go:build debug

// Package engdebug provides opt-in tracing for the storage engine's
// hot paths (currently the byte stream's block flush). It is compiled in only
// under the "debug" build tag, mirroring internal/debug's split between
// debug.go and its release no-op counterpart: production builds of the
// capture tool never pay for the fmt.Sprintf calls below.
package engdebug

import (
	"fmt"
	"os"
)

// Log writes a formatted trace line to stderr. Disabled builds replace
// this with a zero-cost no-op in engdebug_release.go.
func Log(f string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "engine: "+f+"\n", args...)
}
