// Package sidechannel maintains the persistent TCP stream that carries
// tagged frames alongside the UDP control cycle. Its lifecycle is fully
// independent: losing it degrades the session (no joystick or game data) but
// never disables the robot, so a drop here is surfaced as a warning and
// retried with bounded backoff.
package sidechannel

import (
	"bufio"
	"context"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alloy-robotics/dslink/internal/metrics"
	"github.com/alloy-robotics/dslink/internal/protocol"
)

const (
	dialTimeout = 2 * time.Second
	writeWait   = 10 * time.Second
	baseBackoff = 250 * time.Millisecond

	sendBuffer  = 64
	frameBuffer = 64
)

// Channel is one reconnecting side-channel connection. Outbound frames are
// queued on a bounded channel and flushed by the write pump; inbound frames
// are decoded by the read pump and delivered on Frames. Up reports
// connect/disconnect transitions.
type Channel struct {
	addr string

	send   chan protocol.Frame
	frames chan protocol.Frame
	up     chan bool

	connected atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New starts the reconnect loop for the side-channel at addr.
func New(addr string, maxBackoff time.Duration) *Channel {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		addr:   addr,
		send:   make(chan protocol.Frame, sendBuffer),
		frames: make(chan protocol.Frame, frameBuffer),
		up:     make(chan bool, 4),
		ctx:    ctx,
		cancel: cancel,
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(maxBackoff)
	}()
	return c
}

// Queue enqueues an outbound frame. Returns false, dropping the frame, when
// the channel is down or the buffer is full — side-channel data is always
// refreshable, never worth blocking the caller for.
func (c *Channel) Queue(f protocol.Frame) bool {
	if !c.connected.Load() {
		return false
	}
	select {
	case c.send <- f:
		return true
	default:
		log.Printf("WARN: [SIDE] Send buffer full. Dropping frame 0x%02x.", f.ID)
		return false
	}
}

// Frames delivers inbound frames.
func (c *Channel) Frames() <-chan protocol.Frame {
	return c.frames
}

// Up delivers connect (true) and disconnect (false) transitions.
func (c *Channel) Up() <-chan bool {
	return c.up
}

// Close stops the reconnect loop and tears down any live connection.
func (c *Channel) Close() error {
	c.cancel()
	c.wg.Wait()
	return nil
}

// run is the reconnect loop: dial, pump until the connection dies, back
// off, repeat. It exits only on Close.
func (c *Channel) run(maxBackoff time.Duration) {
	bo := newBackoff(baseBackoff, maxBackoff)
	for {
		if wait := bo.Next(); wait > 0 {
			select {
			case <-time.After(wait):
			case <-c.ctx.Done():
				return
			}
		}
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		metrics.SideChannelReconnects.Inc()
		conn, err := net.DialTimeout("tcp", c.addr, dialTimeout)
		if err != nil {
			log.Printf("WARN: [SIDE] Failed to connect to %s: %v. Retrying.", c.addr, err)
			continue
		}

		bo.Reset()
		log.Printf("INFO: [SIDE] Connection to %s is now active.", c.addr)
		c.setConnected(true)
		c.handleConnection(conn)
		c.setConnected(false)
		log.Printf("WARN: [SIDE] Connection to %s lost.", c.addr)
	}
}

func (c *Channel) setConnected(v bool) {
	c.connected.Store(v)
	select {
	case c.up <- v:
	default:
	}
}

// handleConnection runs the read/write pumps until either one exits. Each
// pump closes the connection on the way out, which unblocks the other.
func (c *Channel) handleConnection(conn net.Conn) {
	readDone := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer close(readDone)
		defer conn.Close()
		c.readPump(conn)
	}()
	go func() {
		defer wg.Done()
		defer conn.Close()
		c.writePump(conn, readDone)
	}()
	wg.Wait()
}

// readPump decodes inbound frames until the stream dies or turns to
// garbage. Unknown frame IDs pass through as raw frames; only a corrupt
// length prefix forces a reconnect.
func (c *Channel) readPump(conn net.Conn) {
	r := bufio.NewReader(conn)
	for {
		f, err := protocol.ReadFrame(r)
		if err != nil {
			select {
			case <-c.ctx.Done():
			default:
				log.Printf("WARN: [SIDE] Read error from %s: %v", c.addr, err)
				metrics.DecodeErrors.WithLabelValues("tcp").Inc()
			}
			return
		}
		select {
		case c.frames <- f:
		default:
			log.Printf("WARN: [SIDE] Inbound buffer full. Dropping frame 0x%02x.", f.ID)
		}
	}
}

func (c *Channel) writePump(conn net.Conn, readDone <-chan struct{}) {
	for {
		select {
		case f := <-c.send:
			data, err := protocol.EncodeFrame(f)
			if err != nil {
				log.Printf("WARN: [SIDE] Dropping unencodable frame 0x%02x: %v", f.ID, err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if _, err := conn.Write(data); err != nil {
				log.Printf("WARN: [SIDE] Write error to %s: %v", c.addr, err)
				return
			}
		case <-readDone:
			return
		case <-c.ctx.Done():
			return
		}
	}
}
