// Package version holds build information set by compiler flags.
package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the edge proxy version.
	Version = "0.1.0"
	// GitCommit is the git commit hash this binary was built from.
	GitCommit = "unknown"
	// BuildTime is the time the binary was built.
	BuildTime = "unknown"
	// GoVersion is the Go toolchain version used to build the binary.
	GoVersion = runtime.Version()
)

// FullVersion returns the full version string including commit and build time.
func FullVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s, %s)", Version, GitCommit, BuildTime, GoVersion)
}

// UserAgent returns the string this instance sends as its upstream
// User-Agent header.
func UserAgent() string {
	return fmt.Sprintf("unleash-edge/%s", Version)
}
