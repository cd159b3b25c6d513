// Copyright 2021 FerretDB Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package version provides information about MeshDB version and build configuration.
package version

import (
	"runtime/debug"
	"strconv"

	"github.com/meshdb/meshdb/internal/util/debugbuild"
)

// version is set with -ldflags "-X github.com/meshdb/meshdb/internal/util/version.version=...".
var version = "v0.1.0"

// Info provides details about the current build.
//
//nolint:vet // for readability
type Info struct {
	Version          string
	Commit           string
	Dirty            bool
	DebugBuild       bool
	BuildEnvironment map[string]string
}

// info singleton instance set by init().
var info *Info

// Get returns current build's info.
func Get() *Info {
	return info
}

func init() {
	info = &Info{
		Version:          version,
		DebugBuild:       debugbuild.Enabled,
		BuildEnvironment: map[string]string{},
	}

	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	info.BuildEnvironment["go.version"] = buildInfo.GoVersion

	for _, s := range buildInfo.Settings {
		info.BuildEnvironment[s.Key] = s.Value

		switch s.Key {
		case "vcs.revision":
			info.Commit = s.Value
		case "vcs.modified":
			info.Dirty, _ = strconv.ParseBool(s.Value)
		case "-race":
			if race, _ := strconv.ParseBool(s.Value); race {
				info.DebugBuild = true
			}
		}
	}
}
