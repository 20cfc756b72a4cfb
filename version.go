// Copyright 2025 Edgeo SCADA
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

package uacodec

import "fmt"

// Version information for the uacodec package.
const (
	// Version is the current version of the uacodec package.
	Version = "0.3.0"

	VersionMajor = 0
	VersionMinor = 3
	VersionPatch = 0
)

// VersionInfo contains detailed version information.
type VersionInfo struct {
	Version string `json:"version" yaml:"version"`
	Major   int    `json:"major" yaml:"major"`
	Minor   int    `json:"minor" yaml:"minor"`
	Patch   int    `json:"patch" yaml:"patch"`
	// Builtins is the number of structure codecs compiled into
	// DefaultRegistry.
	Builtins int `json:"builtins" yaml:"builtins"`
}

// GetVersion returns the current version information.
func GetVersion() VersionInfo {
	return VersionInfo{
		Version:  Version,
		Major:    VersionMajor,
		Minor:    VersionMinor,
		Patch:    VersionPatch,
		Builtins: DefaultRegistry.Len(),
	}
}

// String returns the version in "vX.Y.Z" form.
func (v VersionInfo) String() string {
	return fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Patch)
}
