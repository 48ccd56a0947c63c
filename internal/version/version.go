// Package version carries the build identity of the seisan binary.
package version

import "fmt"

// Set with -ldflags "-X .../internal/version.Version=..." at release time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns version, commit and build date.
func Info() (string, string, string) {
	return Version, GitCommit, BuildDate
}

// String formats the build identity on one line.
func String() string {
	return fmt.Sprintf("seisan %s (commit %s, built %s)", Version, GitCommit, BuildDate)
}
