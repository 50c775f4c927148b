package protocol

import (
	"encoding/binary"
	"math"
	"time"
)

// UDP tag IDs pinned to comm version 0x01.
const (
	TagJoystickOutput byte = 0x01
	TagDiskInfo       byte = 0x04
	TagCPUInfo        byte = 0x05
	TagRAMInfo        byte = 0x06
	TagCountdown      byte = 0x07
	TagPDPLog         byte = 0x08
	TagJoysticks      byte = 0x0c
	TagCANMetrics     byte = 0x0e
	TagDateTime       byte = 0x0f
	TagTimezone       byte = 0x10
)

// Tag is an optional extension appended to a UDP packet. On the wire every
// tag is framed as size(1) | id(1) | body, where size counts the id byte and
// the body. The framing is what keeps unknown tags skippable.
type Tag interface {
	ID() byte
	Body() []byte
}

// Raw is a tag kept as uninterpreted bytes. The decoder produces Raw for
// every tag it walks; unknown IDs pass through it untouched.
type Raw struct {
	TagID   byte
	Payload []byte
}

func (r Raw) ID() byte     { return r.TagID }
func (r Raw) Body() []byte { return r.Payload }

// appendTag frames one tag onto buf.
func appendTag(buf []byte, t Tag) ([]byte, error) {
	body := t.Body()
	if len(body) > 254 {
		return nil, newDecodeError(ErrMalformedTag, "tag 0x%02x body is %d bytes, max 254", t.ID(), len(body))
	}
	buf = append(buf, byte(1+len(body)), t.ID())
	return append(buf, body...), nil
}

// parseTags walks a size-prefixed tag list. Unknown IDs are retained as Raw
// entries; a tag that runs past the end of the buffer fails the list.
func parseTags(data []byte) ([]Tag, error) {
	var tags []Tag
	for len(data) > 0 {
		size := int(data[0])
		if size == 0 {
			return nil, newDecodeError(ErrMalformedTag, "zero-length tag")
		}
		if len(data) < 1+size {
			return nil, newDecodeError(ErrMalformedTag, "tag declares %d bytes, %d remain", size, len(data)-1)
		}
		body := make([]byte, size-1)
		copy(body, data[2:1+size])
		tags = append(tags, Raw{TagID: data[1], Payload: body})
		data = data[1+size:]
	}
	return tags, nil
}

// Countdown informs robot code of the time remaining in the current mode.
type Countdown struct {
	Seconds float32
}

func (c Countdown) ID() byte { return TagCountdown }

func (c Countdown) Body() []byte {
	body := make([]byte, 4)
	binary.BigEndian.PutUint32(body, math.Float32bits(c.Seconds))
	return body
}

// Joysticks carries one joystick's input state. One tag is appended per
// attached stick, in slot order.
type Joysticks struct {
	Axes    []int8
	Buttons []bool
	POVs    []int16
}

func (j Joysticks) ID() byte { return TagJoysticks }

func (j Joysticks) Body() []byte {
	packed := packButtons(j.Buttons)
	body := make([]byte, 0, 3+len(j.Axes)+len(packed)+2*len(j.POVs))

	body = append(body, byte(len(j.Axes)))
	for _, a := range j.Axes {
		body = append(body, byte(a))
	}
	body = append(body, byte(len(j.Buttons)))
	body = append(body, packed...)
	body = append(body, byte(len(j.POVs)))
	for _, p := range j.POVs {
		body = binary.BigEndian.AppendUint16(body, uint16(p))
	}
	return body
}

// packButtons packs booleans LSB-first within each group of eight, with the
// first group landing in the last output byte. This is the bit layout the
// robot firmware expects.
func packButtons(buttons []bool) []byte {
	if len(buttons) == 0 {
		return nil
	}
	out := make([]byte, (len(buttons)+7)/8)
	for i, pressed := range buttons {
		if pressed {
			out[len(out)-1-i/8] |= 1 << (i % 8)
		}
	}
	return out
}

// DateTime updates the robot system clock. Sent when a status packet sets
// the need-date flag.
type DateTime struct {
	Time time.Time
}

func (d DateTime) ID() byte { return TagDateTime }

func (d DateTime) Body() []byte {
	utc := d.Time.UTC()
	body := make([]byte, 10)
	binary.BigEndian.PutUint32(body[0:4], uint32(utc.Nanosecond()/1000))
	body[4] = byte(utc.Second())
	body[5] = byte(utc.Minute())
	body[6] = byte(utc.Hour())
	body[7] = byte(utc.Day())
	body[8] = byte(utc.Month() - 1)
	body[9] = byte(utc.Year() - 1900)
	return body
}

// Timezone names the robot's timezone. Sent alongside DateTime.
type Timezone struct {
	Name string
}

func (t Timezone) ID() byte     { return TagTimezone }
func (t Timezone) Body() []byte { return []byte(t.Name) }
