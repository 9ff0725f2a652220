// Package buildinfo holds version information injected at build time via ldflags:
//
//	-X github.com/iotlab-io/labwatch/internal/buildinfo.Version=1.2.0
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version    = "dev"
	CommitHash = "unknown"
	BuildDate  = "unknown"
)

// Info is the version report printed by `labwatch version`.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the build information. Development builds fall back to the
// VCS revision recorded by the Go toolchain.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    CommitHash,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
	if info.Commit != "unknown" {
		return info
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				info.Commit = s.Value
			case "vcs.time":
				if info.BuildDate == "unknown" {
					info.BuildDate = s.Value
				}
			}
		}
	}
	return info
}
