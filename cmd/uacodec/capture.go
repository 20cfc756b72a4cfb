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
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/edgeo-scada/uacodec/internal/capture"
	"github.com/spf13/cobra"
)

var captureCmd = &cobra.Command{
	Use:   "capture [file.pcap]",
	Short: "List the OPC UA frames in a packet capture",
	Long: `Read a pcap capture and list the OPC UA Connection Protocol frames
found in its TCP streams. Handshake messages are decoded in full; for
unsecured single-chunk messages the service type is shown.

Examples:
  uacodec capture traffic.pcap
  uacodec capture --port 4840 --port 48010 -o yaml traffic.pcap
  tcpdump -w - port 4840 | uacodec capture -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCapture,
}

var (
	capturePorts    []uint
	captureAllPorts bool
	captureOutput   string
)

func init() {
	captureCmd.Flags().UintSliceVarP(&capturePorts, "port", "p", []uint{capture.DefaultPort}, "TCP port(s) carrying OPC UA")
	captureCmd.Flags().BoolVar(&captureAllPorts, "all-ports", false, "Consider every TCP stream")
	captureCmd.Flags().StringVarP(&captureOutput, "output", "o", "table", "Output format: table, yaml, json")
}

// frameSummary is the printable form of a capture record.
type frameSummary struct {
	Time    string `yaml:"time" json:"time"`
	Flow    string `yaml:"flow" json:"flow"`
	Type    string `yaml:"type,omitempty" json:"type,omitempty"`
	Chunk   string `yaml:"chunk,omitempty" json:"chunk,omitempty"`
	Size    uint32 `yaml:"size,omitempty" json:"size,omitempty"`
	Channel uint32 `yaml:"channel,omitempty" json:"channel,omitempty"`
	Detail  string `yaml:"detail,omitempty" json:"detail,omitempty"`
	Error   string `yaml:"error,omitempty" json:"error,omitempty"`
}

func summarize(r capture.Record) frameSummary {
	s := frameSummary{
		Time: r.Timestamp.UTC().Format(time.RFC3339Nano),
		Flow: r.Flow,
	}
	if r.Err != nil {
		s.Error = r.Err.Error()
	}
	m := r.Message
	if m == nil {
		return s
	}
	s.Type = m.MessageType
	s.Chunk = string(m.ChunkType)
	s.Size = m.MessageSize
	s.Channel = m.SecureChannelID
	switch {
	case m.Hello != nil:
		s.Detail = fmt.Sprintf("endpoint=%s version=%d max_message=%d", m.Hello.EndpointURL, m.Hello.ProtocolVersion, m.Hello.MaxMessageSize)
	case m.Acknowledge != nil:
		s.Detail = fmt.Sprintf("version=%d receive_buffer=%d send_buffer=%d", m.Acknowledge.ProtocolVersion, m.Acknowledge.ReceiveBufferSize, m.Acknowledge.SendBufferSize)
	case m.Error != nil:
		s.Detail = fmt.Sprintf("%s %s", m.Error.Error, m.Error.Reason)
	case m.ReverseHello != nil:
		s.Detail = fmt.Sprintf("server=%s endpoint=%s", m.ReverseHello.ServerURI, m.ReverseHello.EndpointURL)
	case m.ServiceTypeID != nil:
		s.Detail = m.Service()
		if m.Sequence != nil {
			s.Detail += fmt.Sprintf(" request=%d", m.Sequence.RequestID)
		}
	case m.Security != nil:
		s.Detail = "policy=" + m.Security.SecurityPolicyURI
	}
	return s
}

func runCapture(cmd *cobra.Command, args []string) error {
	var src io.Reader = os.Stdin
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		src = f
	}
	opts, err := codecOptions()
	if err != nil {
		return err
	}

	var ports []uint16
	if !captureAllPorts {
		for _, p := range capturePorts {
			if p > 0xFFFF {
				return fmt.Errorf("invalid port %d", p)
			}
			ports = append(ports, uint16(p))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var records []frameSummary
	reader := capture.NewReader(capture.NewInspector(logger, opts...), ports...)
	if err := reader.Read(ctx, src, func(r capture.Record) error {
		records = append(records, summarize(r))
		return nil
	}); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if captureOutput != "table" {
		return render(w, captureOutput, records)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tFLOW\tTYPE\tSIZE\tCHANNEL\tDETAIL")
	for _, s := range records {
		detail := s.Detail
		if s.Error != "" {
			detail = "error: " + s.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s%s\t%d\t%d\t%s\n", s.Time, s.Flow, s.Type, s.Chunk, s.Size, s.Channel, detail)
	}
	return tw.Flush()
}
