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
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/edgeo-scada/uacodec"
	"github.com/kr/pretty"
	"gopkg.in/yaml.v3"
)

// xmlRoot is the document element wrapping values written as XML.
const xmlRoot = "Values"

// target is the kind of value a command works on: a builtin type or a
// registered structure.
type target struct {
	builtin uacodec.TypeID
	codec   *uacodec.Codec
}

// resolveTarget looks name up first among the builtin types, then among the
// registered structures.
func resolveTarget(name string) (target, error) {
	if t, ok := uacodec.TypeIDByName(name); ok {
		if t == uacodec.TypeNull {
			return target{}, fmt.Errorf("type Null has no values")
		}
		return target{builtin: t}, nil
	}
	if c, ok := uacodec.DefaultRegistry.LookupName(name); ok {
		return target{codec: c}, nil
	}
	return target{}, fmt.Errorf("unknown type %q (see 'uacodec types')", name)
}

func (t target) name() string {
	if t.codec != nil {
		return t.codec.Name
	}
	return t.builtin.String()
}

func (t target) read(d uacodec.Decoder) (any, error) {
	if t.codec != nil {
		return d.ReadStruct(t.name(), t.codec.DataTypeID)
	}
	return uacodec.ReadBuiltin(d, t.name(), t.builtin)
}

func (t target) write(e uacodec.Encoder, v any) error {
	if t.codec != nil {
		return e.WriteStruct(t.name(), v)
	}
	return uacodec.WriteBuiltin(e, t.name(), t.builtin, v)
}

// Wire formats accepted on input and produced on output.
const (
	formatHex    = "hex"
	formatBase64 = "base64"
	formatRaw    = "raw"
	formatXML    = "xml"
	formatPretty = "pretty"
	formatYAML   = "yaml"
	formatJSON   = "json"
)

// readInput returns the bytes of the file named by args[0], of stdin when
// args is empty or "-", or of the arguments themselves when inline is set.
func readInput(args []string, inline bool) ([]byte, error) {
	if inline {
		return []byte(strings.Join(args, " ")), nil
	}
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(args[0])
}

// unwrap turns input text in format into encoded bytes.
func unwrap(format string, data []byte) ([]byte, error) {
	switch format {
	case formatHex:
		return hex.DecodeString(stripSpace(string(data)))
	case formatBase64:
		return base64.StdEncoding.DecodeString(stripSpace(string(data)))
	case formatRaw, formatXML:
		return data, nil
	}
	return nil, fmt.Errorf("unsupported input format %q", format)
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// load decodes one value of t from data in format.
func load(t target, format string, data []byte, opts []uacodec.Option) (any, error) {
	b, err := unwrap(format, data)
	if err != nil {
		return nil, err
	}
	var v any
	read := func(d uacodec.Decoder) (err error) {
		v, err = t.read(d)
		return err
	}
	if format == formatXML {
		err = uacodec.DecodeXML(b, read, opts...)
	} else {
		err = uacodec.DecodeBinary(b, read, opts...)
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// store writes v to w in format.
func store(w io.Writer, t target, format string, v any, opts []uacodec.Option) error {
	write := func(e uacodec.Encoder) error {
		return t.write(e, v)
	}
	switch format {
	case formatHex, formatBase64, formatRaw:
		b, err := uacodec.EncodeBinary(write, opts...)
		if err != nil {
			return err
		}
		switch format {
		case formatHex:
			_, err = fmt.Fprintln(w, hex.EncodeToString(b))
		case formatBase64:
			_, err = fmt.Fprintln(w, base64.StdEncoding.EncodeToString(b))
		default:
			_, err = w.Write(b)
		}
		return err
	case formatXML:
		b, err := uacodec.EncodeXML(xmlRoot, write, opts...)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	}
	return render(w, format, v)
}

// render prints v for a reader.
func render(w io.Writer, format string, v any) error {
	switch format {
	case formatPretty:
		_, err := pretty.Fprintf(w, "%# v\n", v)
		return err
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case formatJSON:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return err
		}
		_, err := w.Write(buf.Bytes())
		return err
	}
	return fmt.Errorf("unsupported output format %q", format)
}
