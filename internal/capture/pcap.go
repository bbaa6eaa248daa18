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

// Package capture replays UADP datagrams from pcap capture files.
package capture

import (
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/edgeo-scada/uadp/internal/transport"
)

// DefaultPort is the IANA port registered for OPC UA PubSub over UDP.
const DefaultPort = 4840

// Reader yields the UDP payloads of a capture addressed to one port.
type Reader struct {
	r    *pcapgo.Reader
	port layers.UDPPort

	// Skipped counts packets that were not UDP or went to another port.
	Skipped int
}

// NewReader reads a pcap stream and filters UDP traffic to port. A zero
// port accepts every UDP packet.
func NewReader(r io.Reader, port uint16) (*Reader, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	return &Reader{r: pr, port: layers.UDPPort(port)}, nil
}

// LinkType returns the link layer of the capture.
func (r *Reader) LinkType() layers.LinkType {
	return r.r.LinkType()
}

// Next returns the next matching datagram, or io.EOF at the end of the
// capture.
func (r *Reader) Next() (transport.Datagram, error) {
	for {
		data, ci, err := r.r.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return transport.Datagram{}, io.EOF
			}
			return transport.Datagram{}, err
		}

		packet := gopacket.NewPacket(data, r.r.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || (r.port != 0 && udp.DstPort != r.port) {
			r.Skipped++
			continue
		}

		d := transport.Datagram{
			Data:     append([]byte(nil), udp.Payload...),
			Received: ci.Timestamp,
		}
		if ip, ok := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4); ok {
			d.Source = &net.UDPAddr{IP: ip.SrcIP, Port: int(udp.SrcPort)}
		}
		return d, nil
	}
}

// Each calls fn for every matching datagram until the capture ends or fn
// returns an error.
func (r *Reader) Each(fn func(transport.Datagram) error) error {
	for {
		d, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(d); err != nil {
			return err
		}
	}
}
