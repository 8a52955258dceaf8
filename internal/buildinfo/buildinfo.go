// Package buildinfo carries version stamps set at link time, e.g.
// -ldflags "-X dashroute/internal/buildinfo.Version=v1.2.0".
package buildinfo

import "fmt"

var (
	Version = "dev"
	Commit  = "unknown"
	BuiltAt = "unknown"
)

func Info() map[string]string {
	return map[string]string{
		"version": Version,
		"commit":  Commit,
		"builtAt": BuiltAt,
	}
}

// String renders the stamps for a --version style line.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuiltAt)
}
