// Package version carries build information for ctxbuf binaries.
//
//	go build -ldflags "-X github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/version.Version=v0.3.0" ./cmd/ctxbuf
package version

import "fmt"

//nolint:gochecknoglobals // set through -ldflags -X
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String formats the build as "v0.3.0 (abc1234, 2026-01-02)".
func String() string {
	return fmt.Sprintf("%s (%s, %s)", Version, Commit, Date)
}
