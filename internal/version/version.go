package version

import "fmt"

// Build metadata, set with -ldflags "-X broadcast-board/internal/version.Version=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String renders the build metadata for the version command.
func String() string {
	return fmt.Sprintf("boardbatch %s\ncommit: %s\nbuilt: %s\n", Version, Commit, BuildDate)
}
