package sidechannel_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alloy-robotics/dslink/internal/protocol"
	"github.com/alloy-robotics/dslink/internal/sidechannel"
)

// robotListener stands in for the robot's TCP endpoint, handing accepted
// connections to the test.
func robotListener(t *testing.T) (net.Listener, <-chan net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	conns := make(chan net.Conn, 4)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conns <- conn
		}
	}()
	return ln, conns
}

func waitConn(t *testing.T, conns <-chan net.Conn) net.Conn {
	t.Helper()
	select {
	case conn := <-conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connection")
		return nil
	}
}

func waitUp(t *testing.T, ch *sidechannel.Channel, want bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-ch.Up():
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for up=%v", want)
		}
	}
}

func TestFrameExchange(t *testing.T) {
	t.Parallel()

	ln, conns := robotListener(t)
	ch := sidechannel.New(ln.Addr().String(), time.Second)
	defer ch.Close()

	conn := waitConn(t, conns)
	waitUp(t, ch, true)

	// Robot to station, preceded by a keepalive.
	_, err := conn.Write([]byte{0x00, 0x00})
	require.NoError(t, err)
	data, err := protocol.EncodeFrame(protocol.Frame{ID: protocol.FrameConsole, Body: []byte("hello")})
	require.NoError(t, err)
	_, err = conn.Write(data)
	require.NoError(t, err)

	select {
	case f := <-ch.Frames():
		require.Equal(t, protocol.FrameConsole, f.ID)
		require.Equal(t, []byte("hello"), f.Body)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbound frame")
	}

	// Station to robot.
	require.True(t, ch.Queue(protocol.NewGameData("LLL")))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	f, err := protocol.ReadFrame(conn)
	require.NoError(t, err)
	require.Equal(t, protocol.FrameGameData, f.ID)
	require.Equal(t, []byte("LLL"), f.Body)
}

func TestReconnectAfterDrop(t *testing.T) {
	t.Parallel()

	ln, conns := robotListener(t)
	ch := sidechannel.New(ln.Addr().String(), time.Second)
	defer ch.Close()

	conn := waitConn(t, conns)
	waitUp(t, ch, true)

	conn.Close()
	waitUp(t, ch, false)

	waitConn(t, conns)
	waitUp(t, ch, true)
}

func TestQueueWhileDown(t *testing.T) {
	t.Parallel()

	// Grab a port nothing is listening on.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ch := sidechannel.New(addr, 50*time.Millisecond)
	defer ch.Close()

	require.False(t, ch.Queue(protocol.NewGameData("LLL")))
}
