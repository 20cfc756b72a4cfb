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

package main

import (
	"fmt"

	"github.com/edgeo-scada/uacodec"
	"github.com/spf13/cobra"
)

var versionOutput string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := uacodec.GetVersion()
		if versionOutput != "" {
			return render(cmd.OutOrStdout(), versionOutput, info)
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "uacodec version %s (%d builtin structures)\n", info.Version, info.Builtins)
		return err
	},
}

func init() {
	versionCmd.Flags().StringVarP(&versionOutput, "output", "o", "", "Output format: yaml, json")
}
