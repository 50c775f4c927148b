package transport_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alloy-robotics/dslink/internal/protocol"
	"github.com/alloy-robotics/dslink/internal/transport"
)

// robotSocket stands in for the robot: it receives control packets and can
// send status packets back.
func robotSocket(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func statusAddr(t *testing.T, u *transport.UDP) *net.UDPAddr {
	t.Helper()
	addr, ok := u.LocalStatusAddr().(*net.UDPAddr)
	require.True(t, ok)
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: addr.Port}
}

func TestControlAndStatusExchange(t *testing.T) {
	t.Parallel()

	robot := robotSocket(t)
	u, err := transport.Dial("127.0.0.1", robot.LocalAddr().(*net.UDPAddr).Port, 0)
	require.NoError(t, err)
	defer u.Close()

	ctrl, err := protocol.EncodeControl(&protocol.ControlPacket{
		Seq:     1,
		Control: protocol.Control{Mode: protocol.ModeTeleop},
		Station: protocol.StationRed1,
	})
	require.NoError(t, err)
	require.NoError(t, u.Send(ctrl))

	buf := make([]byte, 1500)
	require.NoError(t, robot.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := robot.ReadFromUDP(buf)
	require.NoError(t, err)
	got, err := protocol.DecodeControl(buf[:n])
	require.NoError(t, err)
	require.Equal(t, uint16(1), got.Seq)

	status, err := protocol.EncodeStatus(&protocol.StatusPacket{
		Seq:     7,
		Status:  protocol.Status{CodeRunning: true},
		Battery: protocol.Voltage{Volts: 12, Fraction: 128},
	})
	require.NoError(t, err)
	_, err = robot.WriteToUDP(status, statusAddr(t, u))
	require.NoError(t, err)

	select {
	case pkt := <-u.Statuses():
		require.Equal(t, uint16(7), pkt.Seq)
		require.True(t, pkt.Status.CodeRunning)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for status packet")
	}
}

func TestMalformedDatagramsDropped(t *testing.T) {
	t.Parallel()

	robot := robotSocket(t)
	u, err := transport.Dial("127.0.0.1", robot.LocalAddr().(*net.UDPAddr).Port, 0)
	require.NoError(t, err)
	defer u.Close()

	addr := statusAddr(t, u)
	_, err = robot.WriteToUDP([]byte{0xDE, 0xAD}, addr)
	require.NoError(t, err)
	_, err = robot.WriteToUDP([]byte{0x00, 0x01, 0x7F, 0x00, 0x00, 0x00, 0x00, 0x00}, addr)
	require.NoError(t, err)

	status, err := protocol.EncodeStatus(&protocol.StatusPacket{Seq: 3})
	require.NoError(t, err)
	_, err = robot.WriteToUDP(status, addr)
	require.NoError(t, err)

	select {
	case pkt := <-u.Statuses():
		require.Equal(t, uint16(3), pkt.Seq)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for status packet")
	}
	require.Empty(t, u.Statuses())
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	robot := robotSocket(t)
	u, err := transport.Dial("127.0.0.1", robot.LocalAddr().(*net.UDPAddr).Port, 0)
	require.NoError(t, err)

	require.NoError(t, u.Close())
	require.NoError(t, u.Close())
	require.Error(t, u.Send([]byte{0x00}))
}
