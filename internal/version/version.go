// Package version reports the build version of the wifiportal binaries.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

// Set at build time:
//
//	go build -ldflags="-X github.com/muurk/wifiportal/internal/version.Version=v0.3.0 \
//	                   -X github.com/muurk/wifiportal/internal/version.Commit=abc1234"
//
// Unset values are filled from the embedded VCS stamp, then from "dev".
var (
	Version = ""
	Commit  = ""
)

func init() {
	if Version == "" || Commit == "" {
		fromBuildInfo(debug.ReadBuildInfo)
	}
	if Version == "" {
		Version = "dev-" + time.Now().Format("20060102-150405")
	}
	if Commit == "" {
		Commit = "unknown"
	}
}

func fromBuildInfo(read func() (*debug.BuildInfo, bool)) {
	info, ok := read()
	if !ok {
		return
	}

	settings := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}

	if rev := settings["vcs.revision"]; Commit == "" && rev != "" {
		if len(rev) > 7 {
			rev = rev[:7]
		}
		if settings["vcs.modified"] == "true" {
			rev += "-dirty"
		}
		Commit = rev
	}

	if Version == "" {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			Version = info.Main.Version
		} else if t, err := time.Parse(time.RFC3339, settings["vcs.time"]); err == nil {
			Version = "dev-" + t.Format("20060102")
		}
	}
}

// Full returns the version string including commit
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}

// UserAgent is sent by the portal client.
func UserAgent() string {
	return fmt.Sprintf("wifiportal-cfg/%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH)
}
