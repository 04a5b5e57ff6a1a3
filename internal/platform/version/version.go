// Package version exposes the fanout build stamp. Release builds set it with
// -ldflags "-X github.com/pscheid92/fanout/internal/platform/version.Version=...";
// unstamped builds report "dev".
package version

import "runtime"

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown" // RFC 3339
)

// Info is what GET /version returns and what the server logs on startup.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// String renders the stamp on one line.
func (i Info) String() string {
	return i.Version + " (" + i.Commit + ", built " + i.BuildTime + ", " + i.GoVersion + ")"
}
