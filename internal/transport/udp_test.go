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

package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func send(t *testing.T, to net.Addr, payload []byte) {
	t.Helper()
	conn, err := net.Dial("udp4", to.String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write(payload)
	require.NoError(t, err)
}

func TestUDPReceive(t *testing.T) {
	tr := NewUDPTransport("127.0.0.1:0", nil)
	require.NoError(t, tr.Listen(context.Background()))
	defer tr.Close()

	send(t, tr.LocalAddr(), []byte{0x01, 0x02, 0x03})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d, err := tr.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, d.Data)
	assert.NotNil(t, d.Source)
	assert.False(t, d.Received.IsZero())
}

func TestUDPReceiveDeadline(t *testing.T) {
	tr := NewUDPTransport("127.0.0.1:0", nil)
	require.NoError(t, tr.Listen(context.Background()))
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := tr.Receive(ctx)
	assert.Error(t, err)
}

func TestUDPServe(t *testing.T) {
	tr := NewUDPTransport("127.0.0.1:0", nil)
	require.NoError(t, tr.Listen(context.Background()))
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	received := make(chan Datagram, 4)
	done := make(chan error, 1)
	go func() {
		done <- tr.Serve(ctx, func(d Datagram) { received <- d })
	}()

	send(t, tr.LocalAddr(), []byte("one"))
	send(t, tr.LocalAddr(), []byte("two"))
	for _, want := range []string{"one", "two"} {
		select {
		case d := <-received:
			assert.Equal(t, want, string(d.Data))
		case <-time.After(2 * time.Second):
			t.Fatalf("datagram %q not received", want)
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestUDPNotListening(t *testing.T) {
	tr := NewUDPTransport("127.0.0.1:0", nil)
	_, err := tr.Receive(context.Background())
	assert.Error(t, err)
	assert.Nil(t, tr.LocalAddr())
	assert.NoError(t, tr.Close())
}
