// Package version holds build information set through -ldflags.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// String renders the --version output.
func String() string {
	commit := Commit
	if commit == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" && len(s.Value) >= 7 {
					commit = s.Value[:7]
				}
			}
		}
	}
	if commit == "" {
		commit = "unknown"
	}

	s := fmt.Sprintf("sdburn %s (%s", Version, commit)
	if Date != "" {
		s += ", " + Date
	}
	return s + fmt.Sprintf(") %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
