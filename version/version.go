// Package version holds build metadata injected at link time.
package version

import "fmt"

var (
	// Version is the semantic version of the build, set via ldflags.
	Version = "dev"
	// Commit is the git commit hash of the build.
	Commit = "none"
	// BuildDate is the UTC date of the build.
	BuildDate = "unknown"
)

// String returns a human readable version line.
func String() string {
	return fmt.Sprintf("testcase-gen %s (commit %s, built %s)", Version, Commit, BuildDate)
}
