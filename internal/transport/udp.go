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

// Package transport provides the UDP transport PubSub subscribers receive
// UADP datagrams on.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"
)

// MaxDatagramSize is the largest UDP payload.
const MaxDatagramSize = 65535

// Datagram is one received UDP payload.
type Datagram struct {
	Data     []byte
	Source   net.Addr
	Received time.Time
}

// UDPTransport receives datagrams on a unicast or multicast address.
type UDPTransport struct {
	addr  string
	iface *net.Interface

	mu   sync.Mutex
	conn *net.UDPConn
	pc   *ipv4.PacketConn
	buf  []byte
}

// NewUDPTransport creates a transport for addr ("host:port"). A multicast
// host is joined on iface, or on the system default interface if nil.
func NewUDPTransport(addr string, iface *net.Interface) *UDPTransport {
	return &UDPTransport{
		addr:  addr,
		iface: iface,
		buf:   make([]byte, MaxDatagramSize),
	}
}

// Listen opens the socket and joins the multicast group if the address is
// one.
func (t *UDPTransport) Listen(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return nil
	}

	udpAddr, err := net.ResolveUDPAddr("udp4", t.addr)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", t.addr, err)
	}

	bind := t.addr
	multicast := udpAddr.IP != nil && udpAddr.IP.IsMulticast()
	if multicast {
		bind = fmt.Sprintf(":%d", udpAddr.Port)
	}

	var lc net.ListenConfig
	pconn, err := lc.ListenPacket(ctx, "udp4", bind)
	if err != nil {
		return fmt.Errorf("listen failed: %w", err)
	}
	conn := pconn.(*net.UDPConn)

	if multicast {
		pc := ipv4.NewPacketConn(conn)
		if err := pc.JoinGroup(t.iface, &net.UDPAddr{IP: udpAddr.IP}); err != nil {
			conn.Close()
			return fmt.Errorf("join group %s: %w", udpAddr.IP, err)
		}
		t.pc = pc
	}

	t.conn = conn
	return nil
}

// Receive reads one datagram. The context deadline, if any, bounds the wait.
func (t *UDPTransport) Receive(ctx context.Context) (Datagram, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return Datagram{}, errors.New("not listening")
	}

	deadline, _ := ctx.Deadline()
	conn.SetReadDeadline(deadline)
	return t.read(conn)
}

func (t *UDPTransport) read(conn *net.UDPConn) (Datagram, error) {
	n, src, err := conn.ReadFromUDP(t.buf)
	if err != nil {
		return Datagram{}, fmt.Errorf("read failed: %w", err)
	}
	data := make([]byte, n)
	copy(data, t.buf[:n])
	return Datagram{Data: data, Source: src, Received: time.Now()}, nil
}

// Serve passes every received datagram to fn until ctx is cancelled, which
// returns nil, or a read fails.
func (t *UDPTransport) Serve(ctx context.Context, fn func(Datagram)) error {
	if err := t.Listen(ctx); err != nil {
		return err
	}

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	conn.SetReadDeadline(time.Time{})
	// unblock the pending read on cancellation
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	for {
		if ctx.Err() != nil {
			return nil
		}
		d, err := t.read(conn)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		fn(d)
	}
}

// Close leaves the multicast group and closes the socket.
func (t *UDPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}

	if t.pc != nil {
		if udpAddr, err := net.ResolveUDPAddr("udp4", t.addr); err == nil {
			t.pc.LeaveGroup(t.iface, &net.UDPAddr{IP: udpAddr.IP})
		}
		t.pc = nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// LocalAddr returns the local network address.
func (t *UDPTransport) LocalAddr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}
	return t.conn.LocalAddr()
}
