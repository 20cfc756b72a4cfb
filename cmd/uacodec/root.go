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
	"os"
	"strings"

	"github.com/edgeo-scada/uacodec"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
	logger  = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:   "uacodec",
	Short: "OPC UA value codec tool",
	Long: `Encode, decode and convert OPC UA builtin values and structures in
the binary and XML encodings, and inspect captured OPC UA traffic.

Examples:
  uacodec decode --type Variant 06 2a 00 00 00
  uacodec encode --type Int32 --variant 42
  uacodec convert --type DataValue --from hex --to xml dv.hex
  uacodec capture --port 4840 traffic.pcap`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().Int("max-depth", uacodec.DefaultMaxRecursionDepth, "Maximum nesting depth")
	rootCmd.PersistentFlags().Int("max-array", uacodec.DefaultMaxArrayLength, "Maximum array length")
	rootCmd.PersistentFlags().Int("max-string", uacodec.DefaultMaxStringLength, "Maximum string and byte string length")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("limits.max-recursion-depth", rootCmd.PersistentFlags().Lookup("max-depth"))
	viper.BindPFlag("limits.max-array-length", rootCmd.PersistentFlags().Lookup("max-array"))
	viper.BindPFlag("limits.max-string-length", rootCmd.PersistentFlags().Lookup("max-string"))

	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(typesCmd)
	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() error {
	viper.SetEnvPrefix("UACODEC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	if cfgFile != "" {
		logger.Debug("loaded config", slog.String("file", viper.ConfigFileUsed()))
	}
	return nil
}

// codecOptions builds the codec options from flags, environment and the
// config file, in that order of precedence.
func codecOptions() ([]uacodec.Option, error) {
	var limits uacodec.Limits
	if err := viper.UnmarshalKey("limits", &limits); err != nil {
		return nil, fmt.Errorf("invalid limits: %w", err)
	}
	return []uacodec.Option{
		uacodec.WithLimits(limits),
		uacodec.WithLogger(logger),
	}, nil
}
