// Package version exposes build metadata stamped in via ldflags.
package version

//nolint:revive // Populated by the release build.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)
