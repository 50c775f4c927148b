// Package iface holds the small interfaces the session consumes, so the
// transports stay swappable and the session tests can run against fakes.
package iface

import "github.com/alloy-robotics/dslink/internal/protocol"

// ControlLink is the cyclic UDP exchange with the robot. Send transmits one
// encoded control packet; decoded status packets arrive on Statuses. A Send
// failure is a missed cycle, not a fatal condition.
type ControlLink interface {
	Send(packet []byte) error
	Statuses() <-chan *protocol.StatusPacket
	Close() error
}

// SideChannel is the persistent TCP stream for tagged frames. Its lifecycle
// is independent of the control link: Queue never blocks, frames queued while
// disconnected are dropped, and Up flips as the reconnect loop wins or loses.
type SideChannel interface {
	Queue(f protocol.Frame) bool
	Frames() <-chan protocol.Frame
	Up() <-chan bool
	Close() error
}
