/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version holds build information.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is set at build time via ldflags:
//
//	-X github.com/friendsincode/grimnir_jukebox/internal/version.Version=X.Y.Z
var Version = "0.1.0"

// Commit is the VCS revision, when the binary was built from a checkout.
var Commit = ""

// Revision returns Commit, falling back to the revision recorded by the Go toolchain.
func Revision() string {
	if Commit != "" {
		return Commit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return "unknown"
}

// String is the one-line version banner.
func String() string {
	return fmt.Sprintf("jukeboxd %s (%s, %s %s/%s)", Version, Revision(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
