// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// These variables are set via -ldflags at build time.
var (
	GitCommit = ""
	BuildTime = ""
	Version   = "0.1.0-dev"
)

// Build is the resolved build information.
type Build struct {
	Version  string
	Commit   string
	Time     string
	Modified bool
}

var (
	resolveOnce sync.Once
	resolved    Build
)

// Current returns the build information of the running binary.
func Current() Build {
	resolveOnce.Do(func() {
		var settings map[string]string
		if info, ok := debug.ReadBuildInfo(); ok {
			settings = make(map[string]string, len(info.Settings))
			for _, setting := range info.Settings {
				settings[setting.Key] = setting.Value
			}
		}
		resolved = resolve(GitCommit, BuildTime, settings)
	})
	return resolved
}

// resolve prefers injected values and falls back to VCS build settings.
func resolve(commit, buildTime string, settings map[string]string) Build {
	build := Build{Version: Version, Commit: commit, Time: buildTime}
	if build.Commit == "" {
		build.Commit = settings["vcs.revision"]
		if len(build.Commit) > 12 {
			build.Commit = build.Commit[:12]
		}
		build.Modified = settings["vcs.modified"] == "true"
	}
	if build.Time == "" {
		build.Time = settings["vcs.time"]
	}
	if build.Commit == "" {
		build.Commit = "unknown"
	}
	if build.Time == "" {
		build.Time = "unknown"
	}
	return build
}

// String formats the build as "0.1.0-dev (abc1234, 2026-...)".
func (b Build) String() string {
	dirty := ""
	if b.Modified {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", b.Version, b.Commit, dirty, b.Time)
}

// Info returns the version line printed by "ping --version".
func Info() string {
	return "ping " + Current().String()
}

// Full returns Info plus the Go version and platform.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Short returns just the version number.
func Short() string {
	return Version
}
