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

	"github.com/spf13/cobra"
)

var decodeCmd = &cobra.Command{
	Use:   "decode [file | bytes...]",
	Short: "Decode an encoded value and print it",
	Long: `Decode one value of the given builtin type or registered structure
and print it. Input is read from the file argument, from stdin, or with
--inline from the arguments themselves.

Examples:
  uacodec decode --type Variant --inline 06 2a 00 00 00
  uacodec decode --type DataValue --input base64 dv.b64
  uacodec decode --type Range --input xml --output yaml range.xml`,
	RunE: runDecode,
}

var (
	decodeType   string
	decodeInput  string
	decodeOutput string
	decodeInline bool
)

func init() {
	decodeCmd.Flags().StringVarP(&decodeType, "type", "T", "Variant", "Builtin type or structure name")
	decodeCmd.Flags().StringVarP(&decodeInput, "input", "i", formatHex, "Input format: hex, base64, raw, xml")
	decodeCmd.Flags().StringVarP(&decodeOutput, "output", "o", formatPretty, "Output format: pretty, yaml, json, xml, hex, base64")
	decodeCmd.Flags().BoolVar(&decodeInline, "inline", false, "Read the input from the arguments")
}

func runDecode(cmd *cobra.Command, args []string) error {
	t, err := resolveTarget(decodeType)
	if err != nil {
		return err
	}
	opts, err := codecOptions()
	if err != nil {
		return err
	}
	data, err := readInput(args, decodeInline)
	if err != nil {
		return err
	}
	v, err := load(t, decodeInput, data, opts)
	if err != nil {
		return fmt.Errorf("decode %s: %w", t.name(), err)
	}
	return store(cmd.OutOrStdout(), t, decodeOutput, v, opts)
}
