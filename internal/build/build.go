// Package build provides build information that is linked into the binary
// at release time.
package build

const ProjectName = "fgacache"

var (
	// Version is the release version, set via -ldflags at build time.
	Version = "dev"

	// Commit is the git commit the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)
