// Package version carries build identification stamped in via ldflags:
//
//	go build -ldflags "-X github.com/volumewatch/volume-data/internal/version.Version=1.0.0 \
//	                   -X github.com/volumewatch/volume-data/internal/version.Commit=$(git rev-parse --short HEAD)"
package version

var (
	// Version is the release version, "dev" for local builds.
	Version = "dev"

	// Commit is the short git commit hash.
	Commit = "unknown"
)
