// Package version reports the build identity of the binary.
package version

import (
	"runtime"
	"runtime/debug"
)

// Version and Commit are set at build time with -ldflags. When unset they
// fall back to what go install embedded in the binary.
var (
	Version = "dev"
	Commit  = ""
)

// Info is the build identity shown by the CLI and the gateway.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	GoVersion string `json:"go_version"`
}

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}
	if Commit == "" {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && len(s.Value) >= 12 {
				Commit = s.Value[:12]
			}
		}
	}
}

// Get returns the current build identity.
func Get() Info {
	return Info{Version: Version, Commit: Commit, GoVersion: runtime.Version()}
}
