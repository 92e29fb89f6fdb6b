// Copyright 2026 The Alt Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package version reports build information for cmd/hpsctl. It is a
// trimmed analogue of the teacher's version package: the teacher resolves
// a CIPD package identity for a Chromium-infra-distributed binary, which
// has no equivalent for this module (no CIPD distribution channel), so
// only the generic Go build-info half of that package survives here.
package version

import (
	"runtime/debug"
	"strings"
	"sync"
)

// Info holds build information collected from the Go runtime.
type Info struct {
	Build *debug.BuildInfo
}

var (
	once       sync.Once
	currentVer Info
	currentErr error
)

// Current returns the current process's build info, read once and cached.
func Current() (Info, error) {
	once.Do(func() {
		buildInfo, ok := debug.ReadBuildInfo()
		if !ok {
			currentErr = errNoBuildInfo
			return
		}
		currentVer.Build = buildInfo
	})
	return currentVer, currentErr
}

var errNoBuildInfo = &buildInfoError{}

type buildInfoError struct{}

func (*buildInfoError) Error() string { return "cannot read go build info" }

// ModulePath returns the main module's import path, or "" if unknown.
func (v Info) ModulePath() string {
	if v.Build == nil {
		return ""
	}
	return v.Build.Main.Path
}

// ModuleVersion returns the main module's resolved version (e.g. a pseudo-
// version or "(devel)"), or "" if unknown.
func (v Info) ModuleVersion() string {
	if v.Build == nil {
		return ""
	}
	return v.Build.Main.Version
}

// VCSSettings returns the vcs.* build settings (revision, time, dirty
// flag), the subset of debug.BuildInfo.Settings useful for identifying
// exactly what was built.
func (v Info) VCSSettings() map[string]string {
	out := make(map[string]string)
	if v.Build == nil {
		return out
	}
	for _, s := range v.Build.Settings {
		if strings.HasPrefix(s.Key, "vcs.") {
			out[s.Key] = s.Value
		}
	}
	return out
}
