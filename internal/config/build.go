package config

import "fmt"

// Linker-injected build metadata variables, set at compile time via -ldflags:
//
//	go build -ldflags "-X notionmail/internal/config.version=1.2.3 \
//	    -X notionmail/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X notionmail/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// The defaults apply to local builds.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo constructs a BuildInfo from the linker-injected variables.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}

// String renders the build as "version (commit, built time)" for startup logs
// and the bootstrap tool's -version flag.
func (b BuildInfo) String() string {
	return fmt.Sprintf("%s (%s, built %s)", b.Version, b.Commit, b.BuildTime)
}
