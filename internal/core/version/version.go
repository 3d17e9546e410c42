// Package version provides information about the build version of the agent.
package version

// BuildInfo holds version information about the agent build.
type BuildInfo struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Info returns the build information. The version, commit, and date variables
// are intended to be set at build time using -ldflags.
func Info() BuildInfo {
	// Set via -ldflags "-X 'github.com/ChrisPatten/haven-sub004/internal/core/version.version=v0.1.0'
	// -X '....commit=abcd' -X '....date=2026-08-28'"
	return BuildInfo{
		Service: "haven-agent",
		Version: version,
		Commit:  commit,
		Date:    date,
	}
}

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)
