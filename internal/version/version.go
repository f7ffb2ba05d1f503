package version

import "fmt"

// Set at build time with -ldflags "-X github.com/recap/devmon/internal/version.Version=..."
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Full returns a one-line version string for logs and the version command
func Full() string {
	if Version == "dev" {
		return fmt.Sprintf("devmon dev (commit: %s)", Commit)
	}
	return fmt.Sprintf("devmon %s (commit: %s, built: %s)", Version, Commit, BuildDate)
}
