// Package version holds build metadata injected via ldflags.
package version

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// UserAgent identifies creditgate to the remote credit service.
func UserAgent() string {
	return "creditgate/" + Version + " (" + Commit + ")"
}
