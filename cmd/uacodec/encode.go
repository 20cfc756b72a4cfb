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
	"os"
	"reflect"

	"github.com/edgeo-scada/uacodec"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var encodeCmd = &cobra.Command{
	Use:   "encode [values...]",
	Short: "Encode a value given as text",
	Long: `Encode a builtin value given in its text form, or a registered
structure given as a YAML document whose keys are the lower-cased Go field
names.

Examples:
  uacodec encode --type Int32 42
  uacodec encode --type Double --variant 3.5
  uacodec encode --type String --array a b c
  uacodec encode --type NodeId --output xml "ns=2;s=Temperature"
  uacodec encode --type Range --from range.yaml`,
	RunE: runEncode,
}

var (
	encodeType    string
	encodeOutput  string
	encodeVariant bool
	encodeArray   bool
	encodeFrom    string
)

func init() {
	encodeCmd.Flags().StringVarP(&encodeType, "type", "T", "Variant", "Builtin type or structure name")
	encodeCmd.Flags().StringVarP(&encodeOutput, "output", "o", formatHex, "Output format: hex, base64, raw, xml")
	encodeCmd.Flags().BoolVar(&encodeVariant, "variant", false, "Wrap the value in a Variant")
	encodeCmd.Flags().BoolVar(&encodeArray, "array", false, "Encode the arguments as a Variant array")
	encodeCmd.Flags().StringVar(&encodeFrom, "from", "", "YAML file holding a structure value")
}

func runEncode(cmd *cobra.Command, args []string) error {
	t, err := resolveTarget(encodeType)
	if err != nil {
		return err
	}
	opts, err := codecOptions()
	if err != nil {
		return err
	}

	var v any
	switch {
	case t.codec != nil:
		v, err = loadStructure(t.codec, encodeFrom)
	case encodeArray:
		v, err = parseArray(t.builtin, args)
	default:
		if len(args) != 1 {
			return fmt.Errorf("expected exactly one value, got %d", len(args))
		}
		v, err = uacodec.ParseValue(t.builtin, args[0])
	}
	if err != nil {
		return err
	}

	if encodeVariant || encodeArray {
		var vt uacodec.Variant
		if encodeArray {
			vt = v.(uacodec.Variant)
		} else if t.codec != nil {
			vt = uacodec.Variant{Type: uacodec.TypeExtensionObject, Value: uacodec.NewExtensionObject(v)}
		} else if vt, err = uacodec.NewVariant(v); err != nil {
			return err
		}
		t, v = target{builtin: uacodec.TypeVariant}, vt
	}
	return store(cmd.OutOrStdout(), t, encodeOutput, v, opts)
}

// parseArray parses each argument as a value of type t and returns them as
// an array Variant.
func parseArray(t uacodec.TypeID, args []string) (any, error) {
	if t == uacodec.TypeVariant || int(t) >= int(uacodec.TypeExtensionObject) {
		return nil, fmt.Errorf("type %s cannot be parsed from text", t)
	}
	var s reflect.Value
	for _, a := range args {
		x, err := uacodec.ParseValue(t, a)
		if err != nil {
			return nil, err
		}
		xv := reflect.ValueOf(x)
		if !s.IsValid() {
			s = reflect.MakeSlice(reflect.SliceOf(xv.Type()), 0, len(args))
		}
		s = reflect.Append(s, xv)
	}
	if !s.IsValid() {
		// No arguments is the null array.
		return uacodec.Variant{Type: t, IsArray: true}, nil
	}
	return uacodec.NewArrayVariant(s.Interface())
}

// loadStructure decodes the YAML file path into a new value of the
// structure's Go type.
func loadStructure(c *uacodec.Codec, path string) (any, error) {
	if path == "" {
		return nil, fmt.Errorf("structure %s needs --from", c.Name)
	}
	if c.Type == nil || c.Type.Kind() != reflect.Pointer {
		return nil, fmt.Errorf("structure %s cannot be built from YAML", c.Name)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	v := reflect.New(c.Type.Elem())
	if err := yaml.Unmarshal(data, v.Interface()); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return v.Interface(), nil
}
