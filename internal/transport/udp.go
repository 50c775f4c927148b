// Package transport owns the UDP control/status socket pair.
package transport

import (
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/alloy-robotics/dslink/internal/metrics"
	"github.com/alloy-robotics/dslink/internal/protocol"
)

// statusBuffer bounds how many decoded status packets can queue between
// cycles. After a stall several datagrams may arrive at once; the session
// drains the channel and applies the newest, so a small buffer is enough.
const statusBuffer = 8

// UDP is the control-send / status-receive socket pair. Control packets go
// out on a connected socket to the robot's control port; status packets
// arrive on a listening socket and are decoded off the main path by a
// dedicated reader goroutine.
type UDP struct {
	send     *net.UDPConn
	recv     *net.UDPConn
	statuses chan *protocol.StatusPacket

	closeOnce sync.Once
	done      chan struct{}
}

// Dial binds the status port and connects the control socket to
// host:controlPort. A statusPort of 0 binds an ephemeral port.
func Dial(host string, controlPort, statusPort int) (*UDP, error) {
	recv, err := net.ListenUDP("udp", &net.UDPAddr{Port: statusPort})
	if err != nil {
		return nil, fmt.Errorf("failed to bind status port %d: %w", statusPort, err)
	}

	raddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, controlPort))
	if err != nil {
		recv.Close()
		return nil, fmt.Errorf("failed to resolve robot address %s: %w", host, err)
	}
	send, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		recv.Close()
		return nil, fmt.Errorf("failed to open control socket to %s: %w", raddr, err)
	}

	u := &UDP{
		send:     send,
		recv:     recv,
		statuses: make(chan *protocol.StatusPacket, statusBuffer),
		done:     make(chan struct{}),
	}
	go u.readLoop()
	return u, nil
}

// Send transmits one encoded control packet. Errors (host unreachable,
// connection refused) are returned for the caller to absorb as a missed
// cycle; they are never fatal here.
func (u *UDP) Send(packet []byte) error {
	_, err := u.send.Write(packet)
	return err
}

// Statuses delivers decoded status packets. Malformed datagrams never
// appear here; they are dropped and counted.
func (u *UDP) Statuses() <-chan *protocol.StatusPacket {
	return u.statuses
}

// LocalStatusAddr returns the bound status socket address.
func (u *UDP) LocalStatusAddr() net.Addr {
	return u.recv.LocalAddr()
}

// Close shuts both sockets down and stops the reader.
func (u *UDP) Close() error {
	var sendErr, recvErr error
	u.closeOnce.Do(func() {
		close(u.done)
		sendErr = u.send.Close()
		recvErr = u.recv.Close()
	})
	if sendErr != nil {
		return sendErr
	}
	return recvErr
}

// readLoop receives datagrams, decodes them, and hands them to the session.
// A malformed packet is treated the same as an absent one. When the buffer
// is full the oldest packet is dropped: the newest telemetry always wins.
func (u *UDP) readLoop() {
	buf := make([]byte, 1500)
	for {
		n, _, err := u.recv.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-u.done:
				return
			default:
			}
			log.Printf("WARN: [UDP] Receive error: %v", err)
			continue
		}

		pkt, err := protocol.DecodeStatus(buf[:n])
		if err != nil {
			log.Printf("WARN: [UDP] Dropping malformed status packet: %v", err)
			metrics.DecodeErrors.WithLabelValues("udp").Inc()
			continue
		}

		select {
		case u.statuses <- pkt:
		default:
			// Full. Evict the oldest and try once more.
			select {
			case <-u.statuses:
			default:
			}
			select {
			case u.statuses <- pkt:
			default:
			}
		}
	}
}
