// Package version carries build metadata, set at link time with
// -ldflags "-X github.com/banshee-data/robosim/internal/version.Version=...".
package version

import "fmt"

var (
	// Version is the release tag of the simulator
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String renders the build metadata on one line.
func String() string {
	return fmt.Sprintf("robosim %s (git %s, built %s)", Version, GitSHA, BuildTime)
}
