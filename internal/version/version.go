// Package version reports the build of the console.
//
// The variables are overridden at build time, e.g.
//
//	go build -ldflags "-X github.com/bissquit/incident-console/internal/version.Version=1.2.0"
package version

// Version is the release of the console.
var Version = "0.1.0"

// GitCommit is the git commit hash.
var GitCommit = "unknown"

// BuildDate is the build date.
var BuildDate = "unknown"

// Info returns the build information served on /version.
func Info() map[string]string {
	return map[string]string{
		"version":    Version,
		"commit":     GitCommit,
		"build_date": BuildDate,
	}
}
