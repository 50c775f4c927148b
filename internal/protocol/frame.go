package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// TCP frame IDs pinned to comm version 0x01.
const (
	FrameJoystickDescriptor byte = 0x02
	FrameMatchInfo          byte = 0x07
	FrameVersionInfo        byte = 0x0a
	FrameConsole            byte = 0x0c
	FrameGameData           byte = 0x0e
)

// maxFrameBody keeps a corrupt length prefix from allocating the full 64 KiB
// per frame; no defined frame comes anywhere near this.
const maxFrameBody = 8192

// Frame is one length-prefixed, tag-identified unit on the TCP side-channel.
// On the wire: length(2, big-endian) | id(1) | body, where length counts the
// id byte and the body. Unknown IDs are carried through untouched, which is
// what lets either end evolve without breaking the stream.
type Frame struct {
	ID   byte
	Body []byte
}

// EncodeFrame serializes one frame.
func EncodeFrame(f Frame) ([]byte, error) {
	if len(f.Body) > maxFrameBody {
		return nil, newDecodeError(ErrMalformedTag, "frame 0x%02x body is %d bytes, max %d", f.ID, len(f.Body), maxFrameBody)
	}
	buf := make([]byte, 3+len(f.Body))
	binary.BigEndian.PutUint16(buf[0:2], uint16(1+len(f.Body)))
	buf[2] = f.ID
	copy(buf[3:], f.Body)
	return buf, nil
}

// ReadFrame reads exactly one frame from the stream. Zero-length frames are
// keepalives and are skipped. I/O errors are returned as-is so the caller
// can tell a dead connection from a malformed frame.
func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [2]byte
	for {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return Frame{}, err
		}
		length := int(binary.BigEndian.Uint16(hdr[:]))
		if length == 0 {
			continue
		}
		if length > 1+maxFrameBody {
			return Frame{}, newDecodeError(ErrMalformedTag, "frame declares %d bytes", length)
		}
		payload := make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return Frame{}, err
		}
		return Frame{ID: payload[0], Body: payload[1:]}, nil
	}
}

// MatchType classifies the current match for the robot code.
type MatchType byte

const (
	MatchNone          MatchType = 0
	MatchPractice      MatchType = 1
	MatchQualification MatchType = 2
	MatchElimination   MatchType = 3
)

// NewGameData builds the game-specific-data frame.
func NewGameData(data string) Frame {
	return Frame{ID: FrameGameData, Body: []byte(data)}
}

// NewMatchInfo builds the match-info frame: name length, name, match type.
func NewMatchInfo(name string, mt MatchType) (Frame, error) {
	if len(name) > 255 {
		return Frame{}, fmt.Errorf("match name is %d bytes, max 255", len(name))
	}
	body := make([]byte, 0, 2+len(name))
	body = append(body, byte(len(name)))
	body = append(body, name...)
	body = append(body, byte(mt))
	return Frame{ID: FrameMatchInfo, Body: body}, nil
}

// JoystickDescriptor describes one attached joystick so the robot code can
// size its input arrays before the first update arrives.
type JoystickDescriptor struct {
	Slot        byte
	Name        string
	AxisCount   byte
	ButtonCount byte
	POVCount    byte
}

// NewJoystickDescriptor builds the descriptor frame: slot, name length,
// name, axis count, button count, POV count.
func NewJoystickDescriptor(d JoystickDescriptor) (Frame, error) {
	if len(d.Name) > 255 {
		return Frame{}, fmt.Errorf("joystick name is %d bytes, max 255", len(d.Name))
	}
	body := make([]byte, 0, 5+len(d.Name))
	body = append(body, d.Slot, byte(len(d.Name)))
	body = append(body, d.Name...)
	body = append(body, d.AxisCount, d.ButtonCount, d.POVCount)
	return Frame{ID: FrameJoystickDescriptor, Body: body}, nil
}

// ConsoleMessage extracts the text of a robot console frame. Returns false
// for any other frame ID.
func ConsoleMessage(f Frame) (string, bool) {
	if f.ID != FrameConsole {
		return "", false
	}
	return string(f.Body), true
}
