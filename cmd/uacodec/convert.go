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
	"log/slog"

	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert [file]",
	Short: "Convert a value between the binary and XML encodings",
	Long: `Decode one value in one encoding and write it in another. The binary
encoding may be given as hex, base64 or raw bytes.

Examples:
  uacodec convert --type Variant --from hex --to xml value.hex
  uacodec convert --type DataValue --from xml --to base64 dv.xml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConvert,
}

var (
	convertType string
	convertFrom string
	convertTo   string
)

func init() {
	convertCmd.Flags().StringVarP(&convertType, "type", "T", "Variant", "Builtin type or structure name")
	convertCmd.Flags().StringVar(&convertFrom, "from", formatHex, "Input format: hex, base64, raw, xml")
	convertCmd.Flags().StringVar(&convertTo, "to", formatXML, "Output format: hex, base64, raw, xml")
}

func runConvert(cmd *cobra.Command, args []string) error {
	switch convertTo {
	case formatHex, formatBase64, formatRaw, formatXML:
	default:
		return fmt.Errorf("unsupported output format %q", convertTo)
	}
	t, err := resolveTarget(convertType)
	if err != nil {
		return err
	}
	opts, err := codecOptions()
	if err != nil {
		return err
	}
	data, err := readInput(args, false)
	if err != nil {
		return err
	}
	v, err := load(t, convertFrom, data, opts)
	if err != nil {
		return fmt.Errorf("decode %s: %w", t.name(), err)
	}
	logger.Debug("converting",
		slog.String("type", t.name()),
		slog.String("from", convertFrom),
		slog.String("to", convertTo))
	return store(cmd.OutOrStdout(), t, convertTo, v, opts)
}
