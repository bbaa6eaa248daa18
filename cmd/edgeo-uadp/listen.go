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
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	opcua "github.com/edgeo-scada/uadp"
	"github.com/edgeo-scada/uadp/internal/transport"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Receive and decode UADP datagrams over UDP",
	Long: `Listen for UADP datagrams on one or more UDP addresses and decode them
with the configured readers. Multicast addresses are joined.

Examples:
  edgeo-uadp listen --addr :4840 --config readers.yaml
  edgeo-uadp listen --addr 239.0.0.1:4840 --addr 239.0.0.2:4840 --iface eth0 --config readers.yaml
  edgeo-uadp listen --addr 239.0.0.1:4840 --metrics-addr :9100 --config readers.yaml`,
	RunE: runListen,
}

var (
	listenAddrs       []string
	listenIface       string
	listenMetricsAddr string
)

func init() {
	listenCmd.Flags().StringArrayVarP(&listenAddrs, "addr", "a", []string{fmt.Sprintf(":%d", opcua.DefaultPort)}, "UDP address to listen on, unicast or multicast (can specify multiple)")
	listenCmd.Flags().StringVar(&listenIface, "iface", "", "Interface to join multicast groups on")
	listenCmd.Flags().StringVar(&listenMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	viper.BindPFlag("metrics-addr", listenCmd.Flags().Lookup("metrics-addr"))
}

func runListen(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	var iface *net.Interface
	if listenIface != "" {
		iface, err = net.InterfaceByName(listenIface)
		if err != nil {
			return fmt.Errorf("interface %s: %w", listenIface, err)
		}
	}

	transports := make([]*transport.UDPTransport, 0, len(listenAddrs))
	for _, addr := range listenAddrs {
		t := transport.NewUDPTransport(addr, iface)
		if err := t.Listen(ctx); err != nil {
			return err
		}
		defer t.Close()
		logger.Info("listening", slog.String("addr", addr), slog.String("local", t.LocalAddr().String()))
		transports = append(transports, t)
	}

	g, ctx := errgroup.WithContext(ctx)
	handle := datagramHandler(sub, &printer{w: cmd.OutOrStdout()}, logger)

	for _, t := range transports {
		g.Go(func() error {
			return t.Serve(ctx, func(d transport.Datagram) { handle(d) })
		})
	}

	if addr := viper.GetString("metrics-addr"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(newMetricsRegistry(metrics), promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			logger.Info("serving metrics", slog.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	logger.Info("stopped",
		slog.Int64("datagrams", metrics.DatagramsReceived.Value()),
		slog.Int64("messages", metrics.MessagesDecoded.Value()),
		slog.Int64("errors", metrics.DecodeErrors.Value()))
	return err
}
