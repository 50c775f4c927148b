// Package state holds the connection and robot-mode state machine. All mode
// merging lives here: operator commands and robot telemetry both funnel
// through the Machine, which decides what the locally believed state is.
package state

import (
	"errors"
	"sync"
	"time"

	"github.com/alloy-robotics/dslink/internal/protocol"
)

// Link is the status of the UDP control link.
type Link int

const (
	NoLink Link = iota
	Connecting
	Connected
)

func (l Link) String() string {
	switch l {
	case NoLink:
		return "no-link"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// Command rejections. These surface synchronously to the caller; nothing is
// queued and no state changes on a rejected command.
var (
	ErrNoStation    = errors.New("no alliance station assigned")
	ErrNotConnected = errors.New("robot is not connected")
	ErrEStopped     = errors.New("robot is e-stopped")
)

// RobotMode is the locally believed operating state of the robot.
type RobotMode struct {
	Mode     protocol.Mode
	Enabled  bool
	EStopped bool
}

// Snapshot is a consistent copy of the machine state, safe to hand to
// observers.
type Snapshot struct {
	Link           Link
	ConnectedSince time.Time
	Mode           RobotMode
	Station        protocol.AllianceStation
	StationSet     bool
	Battery        protocol.Voltage
	Trace          protocol.Trace
	CodeRunning    bool
	Brownout       bool
}

// Machine is the single owner of link and mode state. Every mutation goes
// through one of its methods under the lock; callers only ever see
// snapshots. Mutators report whether externally observable state changed so
// the session knows when to notify.
type Machine struct {
	mu             sync.Mutex
	link           Link
	connectedSince time.Time
	mode           RobotMode
	station        protocol.AllianceStation
	stationSet     bool
	estopReset     bool
	battery        protocol.Voltage
	trace          protocol.Trace
	codeRunning    bool
	brownout       bool
}

// NewMachine returns a machine with no link, robot disabled, teleop mode.
func NewMachine() *Machine {
	return &Machine{}
}

// Snapshot returns a consistent copy of the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	return Snapshot{
		Link:           m.link,
		ConnectedSince: m.connectedSince,
		Mode:           m.mode,
		Station:        m.station,
		StationSet:     m.stationSet,
		Battery:        m.battery,
		Trace:          m.trace,
		CodeRunning:    m.codeRunning,
		Brownout:       m.brownout,
	}
}

// StartConnecting moves NoLink to Connecting. The session calls this when it
// starts and again for every cycle sent while the link is down, so each send
// is a reconnect attempt.
func (m *Machine) StartConnecting() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.link != NoLink {
		return m.snapshotLocked(), false
	}
	m.link = Connecting
	return m.snapshotLocked(), true
}

// HandleStatus applies one well-formed status packet. A packet while not
// Connected completes the round-trip and transitions to Connected; a pending
// e-stop reset is honored at that moment, and only then. Telemetry may
// downgrade the believed mode — a robot-reported e-stop latches locally no
// matter what was last commanded — but never upgrades it.
func (m *Machine) HandleStatus(pkt *protocol.StatusPacket) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	before := m.link
	beforeMode := m.mode

	if m.link != Connected {
		m.link = Connected
		m.connectedSince = time.Now()
		if m.estopReset && !pkt.Status.EStopped {
			m.mode.EStopped = false
			m.estopReset = false
		}
	}

	if pkt.Status.EStopped {
		m.mode.EStopped = true
		m.mode.Enabled = false
	}

	m.battery = pkt.Battery
	m.trace = pkt.Trace
	m.codeRunning = pkt.Status.CodeRunning
	m.brownout = pkt.Status.Brownout

	changed := before != m.link || beforeMode != m.mode
	return m.snapshotLocked(), changed
}

// WatchdogTrip forces the fail-safe state: NoLink and disabled. Enabling is
// never re-asserted automatically after this; the operator must re-command
// it once a fresh round-trip completes.
func (m *Machine) WatchdogTrip() (Snapshot, bool) {
	return m.dropLink()
}

// Disconnect is an explicit operator-initiated link teardown. Same effect as
// a watchdog trip.
func (m *Machine) Disconnect() (Snapshot, bool) {
	return m.dropLink()
}

func (m *Machine) dropLink() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.link == NoLink && !m.mode.Enabled {
		return m.snapshotLocked(), false
	}
	m.link = NoLink
	m.connectedSince = time.Time{}
	m.mode.Enabled = false
	return m.snapshotLocked(), true
}

// SetStation assigns the alliance station. Allowed in any link state; the
// assignment rides out on the next control packet.
func (m *Machine) SetStation(st protocol.AllianceStation) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stationSet && m.station == st {
		return m.snapshotLocked(), false
	}
	m.station = st
	m.stationSet = true
	return m.snapshotLocked(), true
}

// SetMode selects the operating mode. Requires a live link. Switching modes
// always drops the enable; the operator re-enables in the new mode.
func (m *Machine) SetMode(mode protocol.Mode) (Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.link != Connected {
		return Snapshot{}, false, ErrNotConnected
	}
	if m.mode.Mode == mode {
		return m.snapshotLocked(), false, nil
	}
	m.mode.Mode = mode
	m.mode.Enabled = false
	return m.snapshotLocked(), true, nil
}

// Enable asserts robot enable. Preconditions: a station is assigned, the
// link is Connected, and the robot is not e-stopped. Violating any of them
// rejects the command without touching state.
func (m *Machine) Enable() (Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.stationSet {
		return Snapshot{}, false, ErrNoStation
	}
	if m.link != Connected {
		return Snapshot{}, false, ErrNotConnected
	}
	if m.mode.EStopped {
		return Snapshot{}, false, ErrEStopped
	}
	if m.mode.Enabled {
		return m.snapshotLocked(), false, nil
	}
	m.mode.Enabled = true
	return m.snapshotLocked(), true, nil
}

// Disable drops the enable. Always permitted.
func (m *Machine) Disable() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.mode.Enabled {
		return m.snapshotLocked(), false
	}
	m.mode.Enabled = false
	return m.snapshotLocked(), true
}

// EStop latches the emergency stop. Always permitted, and sticky: it
// survives everything except ResetEStop followed by a fresh
// Connecting→Connected round-trip.
func (m *Machine) EStop() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode.EStopped {
		return m.snapshotLocked(), false
	}
	m.mode.EStopped = true
	m.mode.Enabled = false
	return m.snapshotLocked(), true
}

// ResetEStop records the operator's intent to clear the e-stop. The latch
// itself clears only when the next fresh round-trip completes with the robot
// no longer reporting e-stop.
func (m *Machine) ResetEStop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.estopReset = true
}
