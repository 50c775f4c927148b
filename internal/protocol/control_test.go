package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alloy-robotics/dslink/internal/protocol"
)

func TestEncodeControlWireFormat(t *testing.T) {
	t.Parallel()

	pkt := &protocol.ControlPacket{
		Seq: 0x0102,
		Control: protocol.Control{
			Mode:    protocol.ModeTeleop,
			Enabled: true,
		},
		Station: protocol.StationRed2,
	}

	data, err := protocol.EncodeControl(pkt)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02, 0x01, 0x04, 0x00, 0x01}, data)
}

func TestEncodeControlModeBits(t *testing.T) {
	t.Parallel()

	for mode, want := range map[protocol.Mode]byte{
		protocol.ModeTeleop:     0x04,
		protocol.ModeTest:       0x05,
		protocol.ModeAutonomous: 0x06,
	} {
		data, err := protocol.EncodeControl(&protocol.ControlPacket{
			Control: protocol.Control{Mode: mode, Enabled: true},
			Station: protocol.StationRed1,
		})
		require.NoError(t, err)
		require.Equal(t, want, data[3], "mode %s", mode)
	}
}

func TestControlPacketRoundTrip(t *testing.T) {
	t.Parallel()

	pkt := &protocol.ControlPacket{
		Seq: 0xFFFE,
		Control: protocol.Control{
			Mode:         protocol.ModeAutonomous,
			EStopped:     true,
			FMSConnected: true,
		},
		Request: protocol.Request{RestartCode: true},
		Station: protocol.StationBlue3,
		Tags: []protocol.Tag{
			protocol.Raw{TagID: protocol.TagTimezone, Payload: []byte("UTC")},
		},
	}

	data, err := protocol.EncodeControl(pkt)
	require.NoError(t, err)

	decoded, err := protocol.DecodeControl(data)
	require.NoError(t, err)
	require.Equal(t, pkt, decoded)
}

func TestEncodeControlRejectsEStopWhileEnabled(t *testing.T) {
	t.Parallel()

	_, err := protocol.EncodeControl(&protocol.ControlPacket{
		Control: protocol.Control{Enabled: true, EStopped: true},
		Station: protocol.StationRed1,
	})
	require.ErrorIs(t, err, protocol.ErrInvalidFlagCombination)
}

func TestEncodeControlRejectsInvalidStation(t *testing.T) {
	t.Parallel()

	_, err := protocol.EncodeControl(&protocol.ControlPacket{
		Station: protocol.AllianceStation(6),
	})
	require.ErrorIs(t, err, protocol.ErrInvalidFlagCombination)
}

func TestDecodeControlTooShort(t *testing.T) {
	t.Parallel()

	_, err := protocol.DecodeControl([]byte{0x00, 0x01, 0x01})
	require.ErrorIs(t, err, protocol.ErrTooShort)
}

func TestDecodeControlUnknownVersion(t *testing.T) {
	t.Parallel()

	_, err := protocol.DecodeControl([]byte{0x00, 0x01, 0x7F, 0x00, 0x00, 0x00})
	require.ErrorIs(t, err, protocol.ErrUnknownVersion)
}

func TestDecodeControlInvalidModeBits(t *testing.T) {
	t.Parallel()

	// Low two bits 0b11 names no mode.
	_, err := protocol.DecodeControl([]byte{0x00, 0x01, 0x01, 0x03, 0x00, 0x00})
	require.ErrorIs(t, err, protocol.ErrInvalidFlagCombination)
}

func TestAllianceStations(t *testing.T) {
	t.Parallel()

	require.Equal(t, protocol.StationRed1, protocol.RedStation(1))
	require.Equal(t, protocol.StationRed3, protocol.RedStation(3))
	require.Equal(t, protocol.StationBlue1, protocol.BlueStation(1))
	require.Equal(t, protocol.StationBlue3, protocol.BlueStation(3))

	require.True(t, protocol.StationRed2.IsRed())
	require.False(t, protocol.StationBlue1.IsRed())
	require.Equal(t, 2, protocol.StationRed2.Position())
	require.Equal(t, 3, protocol.StationBlue3.Position())
	require.Equal(t, "red1", protocol.StationRed1.String())
	require.Equal(t, "blue2", protocol.StationBlue2.String())
	require.False(t, protocol.AllianceStation(6).Valid())
}
