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

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	opcua "github.com/edgeo-scada/uadp"
	"github.com/edgeo-scada/uadp/internal/capture"
)

var replayCmd = &cobra.Command{
	Use:   "replay <file.pcap>",
	Short: "Decode the UADP datagrams of a pcap capture",
	Long: `Replay the UDP datagrams of a pcap capture through the configured readers.

Examples:
  edgeo-uadp replay capture.pcap --config readers.yaml
  edgeo-uadp replay capture.pcap --port 4841 --config readers.yaml -v`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

var replayPort uint16

func init() {
	replayCmd.Flags().Uint16VarP(&replayPort, "port", "p", capture.DefaultPort, "UDP destination port to replay (0 for all)")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	logger := newLogger()
	metrics := opcua.NewMetrics()

	sub, err := buildSubscriber(cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer sub.Close()

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()

	r, err := capture.NewReader(f, replayPort)
	if err != nil {
		return err
	}

	out := &printer{w: cmd.OutOrStdout()}
	if err := r.Each(datagramHandler(sub, out, logger)); err != nil {
		return fmt.Errorf("replay failed: %w", err)
	}

	logger.Info("replay finished",
		slog.Int("skipped_packets", r.Skipped),
		slog.Int64("datagrams", metrics.DatagramsReceived.Value()),
		slog.Int64("messages", metrics.MessagesDecoded.Value()),
		slog.Int64("errors", metrics.DecodeErrors.Value()),
		slog.Int64("unrouted", metrics.UnroutedDatagrams.Value()))
	return nil
}
