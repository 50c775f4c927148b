package protocol

import "encoding/binary"

// controlHeaderSize is seq(2) + version(1) + control(1) + request(1) + station(1).
const controlHeaderSize = 6

// ControlPacket is the operator-to-robot message sent once per cycle.
type ControlPacket struct {
	Seq     uint16
	Control Control
	Request Request
	Station AllianceStation
	Tags    []Tag
}

// EncodeControl serializes a control packet. The flag combination and the
// alliance station are validated before any bytes are produced.
func EncodeControl(p *ControlPacket) ([]byte, error) {
	if err := p.Control.Validate(); err != nil {
		return nil, err
	}
	if !p.Station.Valid() {
		return nil, newDecodeError(ErrInvalidFlagCombination, "alliance station byte %d", p.Station)
	}

	buf := make([]byte, controlHeaderSize, controlHeaderSize+16*len(p.Tags))
	binary.BigEndian.PutUint16(buf[0:2], p.Seq)
	buf[2] = Version
	buf[3] = p.Control.encode()
	buf[4] = p.Request.encode()
	buf[5] = byte(p.Station)

	for _, tag := range p.Tags {
		var err error
		buf, err = appendTag(buf, tag)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// DecodeControl deserializes a control packet. Unrecognized tags are kept as
// Raw entries so the caller can inspect or ignore them.
func DecodeControl(data []byte) (*ControlPacket, error) {
	if len(data) < controlHeaderSize {
		return nil, newDecodeError(ErrTooShort, "control packet is %d bytes, need %d", len(data), controlHeaderSize)
	}
	if data[2] != Version {
		return nil, newDecodeError(ErrUnknownVersion, "0x%02x", data[2])
	}

	control, err := decodeControlFlags(data[3])
	if err != nil {
		return nil, err
	}
	station := AllianceStation(data[5])
	if !station.Valid() {
		return nil, newDecodeError(ErrInvalidFlagCombination, "alliance station byte %d", station)
	}

	tags, err := parseTags(data[controlHeaderSize:])
	if err != nil {
		return nil, err
	}

	return &ControlPacket{
		Seq:     binary.BigEndian.Uint16(data[0:2]),
		Control: control,
		Request: decodeRequest(data[4]),
		Station: station,
		Tags:    tags,
	}, nil
}
