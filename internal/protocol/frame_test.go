package protocol_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alloy-robotics/dslink/internal/protocol"
)

func TestFrameRoundTrip(t *testing.T) {
	t.Parallel()

	f := protocol.Frame{ID: protocol.FrameConsole, Body: []byte("robot says hi")}
	data, err := protocol.EncodeFrame(f)
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0x0E, 0x0C}, data[:3])

	got, err := protocol.ReadFrame(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, f, got)
}

func TestReadFrameSkipsKeepalives(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x00})
	buf.Write([]byte{0x00, 0x00})
	data, err := protocol.EncodeFrame(protocol.NewGameData("LLL"))
	require.NoError(t, err)
	buf.Write(data)

	f, err := protocol.ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, protocol.FrameGameData, f.ID)
	require.Equal(t, []byte("LLL"), f.Body)
}

func TestReadFrameErrors(t *testing.T) {
	t.Parallel()

	_, err := protocol.ReadFrame(bytes.NewReader(nil))
	require.ErrorIs(t, err, io.EOF)

	// Header promises more bytes than the stream carries.
	_, err = protocol.ReadFrame(bytes.NewReader([]byte{0x00, 0x05, 0x0C, 0x41}))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	// Corrupt length prefix.
	_, err = protocol.ReadFrame(bytes.NewReader([]byte{0xFF, 0xFF}))
	require.ErrorIs(t, err, protocol.ErrMalformedTag)
}

func TestEncodeFrameRejectsOversizedBody(t *testing.T) {
	t.Parallel()

	_, err := protocol.EncodeFrame(protocol.Frame{ID: 0x01, Body: make([]byte, 8193)})
	require.ErrorIs(t, err, protocol.ErrMalformedTag)
}

func TestNewMatchInfo(t *testing.T) {
	t.Parallel()

	f, err := protocol.NewMatchInfo("Q12", protocol.MatchQualification)
	require.NoError(t, err)
	require.Equal(t, protocol.FrameMatchInfo, f.ID)
	require.Equal(t, []byte{0x03, 'Q', '1', '2', 0x02}, f.Body)

	_, err = protocol.NewMatchInfo(string(make([]byte, 256)), protocol.MatchNone)
	require.Error(t, err)
}

func TestNewJoystickDescriptor(t *testing.T) {
	t.Parallel()

	f, err := protocol.NewJoystickDescriptor(protocol.JoystickDescriptor{
		Slot:        1,
		Name:        "pad",
		AxisCount:   4,
		ButtonCount: 10,
		POVCount:    1,
	})
	require.NoError(t, err)
	require.Equal(t, protocol.FrameJoystickDescriptor, f.ID)
	require.Equal(t, []byte{0x01, 0x03, 'p', 'a', 'd', 0x04, 0x0A, 0x01}, f.Body)
}

func TestConsoleMessage(t *testing.T) {
	t.Parallel()

	msg, ok := protocol.ConsoleMessage(protocol.Frame{ID: protocol.FrameConsole, Body: []byte("oops")})
	require.True(t, ok)
	require.Equal(t, "oops", msg)

	_, ok = protocol.ConsoleMessage(protocol.NewGameData("X"))
	require.False(t, ok)
}
