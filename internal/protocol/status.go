package protocol

import "encoding/binary"

// statusHeaderSize is seq(2) + version(1) + status(1) + trace(1) +
// battery(2) + needDate(1).
const statusHeaderSize = 8

// StatusPacket is the robot-to-operator telemetry reply sent each cycle.
type StatusPacket struct {
	Seq      uint16
	Status   Status
	Trace    Trace
	Battery  Voltage
	NeedDate bool
	Tags     []Tag
}

// DecodeStatus deserializes a status packet. Unknown tags are skipped by
// their declared length and retained as Raw entries; a truncated tag list
// fails the whole packet.
func DecodeStatus(data []byte) (*StatusPacket, error) {
	if len(data) < statusHeaderSize {
		return nil, newDecodeError(ErrTooShort, "status packet is %d bytes, need %d", len(data), statusHeaderSize)
	}
	if data[2] != Version {
		return nil, newDecodeError(ErrUnknownVersion, "0x%02x", data[2])
	}

	status, err := decodeStatusFlags(data[3])
	if err != nil {
		return nil, err
	}

	tags, err := parseTags(data[statusHeaderSize:])
	if err != nil {
		return nil, err
	}

	return &StatusPacket{
		Seq:      binary.BigEndian.Uint16(data[0:2]),
		Status:   status,
		Trace:    Trace(data[4]),
		Battery:  Voltage{Volts: data[5], Fraction: data[6]},
		NeedDate: data[7] == 1,
		Tags:     tags,
	}, nil
}

// EncodeStatus serializes a status packet. The engine itself never sends
// status packets; this is the symmetric half of the codec, used by robot
// stand-ins in tests and simulators.
func EncodeStatus(p *StatusPacket) ([]byte, error) {
	if !p.Status.Mode.valid() {
		return nil, newDecodeError(ErrInvalidFlagCombination, "status mode value %d", p.Status.Mode)
	}
	if p.Status.EStopped && p.Status.Enabled {
		return nil, newDecodeError(ErrInvalidFlagCombination, "status e-stop with enabled set")
	}

	buf := make([]byte, statusHeaderSize, statusHeaderSize+16*len(p.Tags))
	binary.BigEndian.PutUint16(buf[0:2], p.Seq)
	buf[2] = Version
	buf[3] = p.Status.encode()
	buf[4] = byte(p.Trace)
	buf[5] = p.Battery.Volts
	buf[6] = p.Battery.Fraction
	if p.NeedDate {
		buf[7] = 1
	}

	for _, tag := range p.Tags {
		var err error
		buf, err = appendTag(buf, tag)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}
