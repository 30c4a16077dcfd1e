// Package buildinfo identifies the running fan binary.
//
// Release builds stamp the package variables through -ldflags -X; anything
// else (go run, go test, a plain go build) keeps the defaults and announces
// itself as an unstamped dev build.
package buildinfo

// Stamped at link time, e.g.
//
//	go build -ldflags "\
//	  -X github.com/sufield/fan/internal/buildinfo.Version=v1.2.0 \
//	  -X github.com/sufield/fan/internal/buildinfo.CommitHash=$(git rev-parse --short HEAD)"
var (
	Version    = "dev"
	CommitHash = "unknown"
	BuildTime  = "unknown"
	BuildUser  = "unknown"
	BuildHost  = "unknown"
)

// Info is one build's identifying facts, shaped for JSON output.
type Info struct {
	Version    string `json:"version"`
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	BuildUser  string `json:"build_user"`
	BuildHost  string `json:"build_host"`
}

// Get snapshots the stamped variables.
func Get() Info {
	return Info{
		Version:    Version,
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		BuildUser:  BuildUser,
		BuildHost:  BuildHost,
	}
}

// Stamped reports whether this binary came out of a stamped release build.
// Unstamped binaries should not be deployed; the version command flags them.
func (i Info) Stamped() bool {
	return i.Version != "dev"
}
