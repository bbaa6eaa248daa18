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
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	opcua "github.com/edgeo-scada/uadp"
	"github.com/edgeo-scada/uadp/pubsub"
)

var decodeCmd = &cobra.Command{
	Use:   "decode [hex]",
	Short: "Decode a single UADP datagram",
	Long: `Decode one UADP datagram given as hex or read from a binary file.

Without --config the datagram is decoded on its own; RawData payloads need
field metadata and are rejected. With --config it is verified against the
reader whose route it matches.

Examples:
  edgeo-uadp decode "f1 a1 01 2a 00 ..."
  edgeo-uadp decode -f datagram.bin
  edgeo-uadp decode -f datagram.bin --config readers.yaml --format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDecode,
}

var (
	decodeFile           string
	decodeMaxMessageSize uint32
)

func init() {
	decodeCmd.Flags().StringVarP(&decodeFile, "file", "f", "", "Read the datagram from a binary file")
	decodeCmd.Flags().Uint32Var(&decodeMaxMessageSize, "max-message-size", opcua.DefaultMaxMessageSize, "Largest accepted chunked message")
}

func readDatagram(args []string) ([]byte, error) {
	switch {
	case decodeFile != "" && len(args) > 0:
		return nil, errors.New("give either a hex argument or --file, not both")
	case decodeFile != "":
		data, err := os.ReadFile(decodeFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read datagram: %w", err)
		}
		return data, nil
	case len(args) == 1:
		return parseHex(args[0])
	default:
		return nil, errors.New("no datagram given")
	}
}

func runDecode(cmd *cobra.Command, args []string) error {
	data, err := readDatagram(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	logger := newLogger()

	if len(cfg.Readers) == 0 {
		nm, err := pubsub.NewDecoder(pubsub.WithMaxMessageSize(decodeMaxMessageSize), pubsub.WithLogger(logger)).Decode(data)
		if err != nil {
			return fmt.Errorf("decode failed: %w", err)
		}
		return printMessage(cmd.OutOrStdout(), "", nm)
	}

	metrics := opcua.NewMetrics()
	sub, err := buildSubscriber(cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer sub.Close()

	return sub.Handle(data, func(_ pubsub.Route, nm *pubsub.NetworkMessage) error {
		return printMessage(cmd.OutOrStdout(), "", nm)
	})
}
