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
	"text/tabwriter"

	"github.com/edgeo-scada/uacodec"
	"github.com/spf13/cobra"
)

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List the builtin types and registered structures",
	RunE:  runTypes,
}

var typesOutput string

func init() {
	typesCmd.Flags().StringVarP(&typesOutput, "output", "o", "table", "Output format: table, yaml, json")
}

type typeEntry struct {
	ID   uint8  `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

type structureEntry struct {
	Name           string `yaml:"name" json:"name"`
	DataType       string `yaml:"data_type" json:"data_type"`
	BinaryEncoding string `yaml:"binary_encoding" json:"binary_encoding"`
	XMLEncoding    string `yaml:"xml_encoding" json:"xml_encoding"`
	GoType         string `yaml:"go_type" json:"go_type"`
}

type typeListing struct {
	Builtins   []typeEntry            `yaml:"builtins" json:"builtins"`
	Structures []structureEntry       `yaml:"structures" json:"structures"`
	Registry   map[string]interface{} `yaml:"registry_metrics,omitempty" json:"registry_metrics,omitempty"`
}

func runTypes(cmd *cobra.Command, args []string) error {
	var l typeListing
	for t := uacodec.TypeBoolean; t.IsValid(); t++ {
		l.Builtins = append(l.Builtins, typeEntry{ID: uint8(t), Name: t.String()})
	}
	for _, c := range uacodec.DefaultRegistry.Codecs() {
		e := structureEntry{
			Name:           c.Name,
			DataType:       c.DataTypeID.String(),
			BinaryEncoding: c.BinaryEncodingID.String(),
			XMLEncoding:    c.XMLEncodingID.String(),
		}
		if c.Type != nil {
			e.GoType = c.Type.String()
		}
		l.Structures = append(l.Structures, e)
	}
	if verbose {
		l.Registry = uacodec.DefaultRegistry.Metrics().Collect()
	}

	w := cmd.OutOrStdout()
	if typesOutput != "table" {
		return render(w, typesOutput, l)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tBUILTIN TYPE")
	for _, t := range l.Builtins {
		fmt.Fprintf(tw, "%d\t%s\n", t.ID, t.Name)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "STRUCTURE\tDATA TYPE\tBINARY\tXML\tGO TYPE")
	for _, s := range l.Structures {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.Name, s.DataType, s.BinaryEncoding, s.XMLEncoding, s.GoType)
	}
	return tw.Flush()
}
