// Package session composes the codec, state machine, and transports into the
// public driver-station surface: issue commands, observe state changes.
//
// Concurrency model: one run goroutine owns the cycle ticker, the watchdog
// accounting, and every state mutation triggered by inbound traffic. Operator
// commands run on the caller's goroutine but funnel through the state
// machine's lock, so a command issued mid-cycle is reflected starting with
// the next tick, never retroactively. A stalled side-channel can never delay
// the ticker: the two transports hand off through buffered channels only.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alloy-robotics/dslink/internal/config"
	"github.com/alloy-robotics/dslink/internal/iface"
	"github.com/alloy-robotics/dslink/internal/metrics"
	"github.com/alloy-robotics/dslink/internal/protocol"
	"github.com/alloy-robotics/dslink/internal/state"
)

// maxJoysticks is the number of joystick slots carried per control packet.
const maxJoysticks = 6

// staleWindow is how far behind the last applied sequence number a status
// packet may be and still count as a late duplicate. Anything further back
// is taken as a robot-side restart and applied.
const staleWindow = 64

// ErrSideChannelDown reports that a frame could not be queued because the
// TCP side-channel is disconnected or saturated.
var ErrSideChannelDown = errors.New("side channel is down")

// Update is one observation-stream entry, emitted on every state change.
type Update struct {
	Link          state.Link
	Mode          state.RobotMode
	Station       protocol.AllianceStation
	StationSet    bool
	Battery       protocol.Voltage
	Trace         protocol.Trace
	Status        *protocol.StatusPacket // last well-formed status, nil before the first
	SideChannelUp bool
}

// Session is the long-lived aggregate owning the state machine, the sequence
// counter, and both transports. One Session per robot target.
type Session struct {
	cfg     *config.Config
	machine *state.Machine
	link    iface.ControlLink
	side    iface.SideChannel

	mu         sync.Mutex
	pendingReq protocol.Request
	oneShot    []protocol.Tag
	countdown  *float32
	joysticks  [maxJoysticks]*protocol.Joysticks
	stickCount int
	lastStatus *protocol.StatusPacket
	sideUp     bool
	onConsole  func(string)
	onFrame    func(protocol.Frame)

	obsMu     sync.Mutex
	observers map[uuid.UUID]chan Update

	// Owned by the run goroutine.
	seq       uint16
	misses    int
	gotStatus bool
	lastSeq   uint16
	haveSeq   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a session over the given transports. The caller supplies
// configuration (target resolution, station selection) up front; nothing is
// renegotiated later.
func New(cfg *config.Config, link iface.ControlLink, side iface.SideChannel) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		cfg:       cfg,
		machine:   state.NewMachine(),
		link:      link,
		side:      side,
		observers: make(map[uuid.UUID]chan Update),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins the control cycle. The link enters Connecting with the first
// packet sent.
func (s *Session) Start() {
	if st, ok, err := s.cfg.Station(); err == nil && ok {
		s.machine.SetStation(st)
	}
	if snap, changed := s.machine.StartConnecting(); changed {
		s.publish(snap)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run()
	}()
}

// Close shuts the session down: the cycle stops, pending receives are
// abandoned, and both transports are torn down.
func (s *Session) Close() error {
	s.cancel()
	s.wg.Wait()
	linkErr := s.link.Close()
	sideErr := s.side.Close()
	if linkErr != nil {
		return linkErr
	}
	return sideErr
}

// Snapshot returns the current state.
func (s *Session) Snapshot() state.Snapshot {
	return s.machine.Snapshot()
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

// SetAllianceStation assigns the competition position sent with every
// control packet.
func (s *Session) SetAllianceStation(st protocol.AllianceStation) error {
	if !st.Valid() {
		return fmt.Errorf("invalid alliance station byte %d", st)
	}
	if snap, changed := s.machine.SetStation(st); changed {
		s.publish(snap)
	}
	return nil
}

// SetMode selects the robot operating mode. Rejected unless Connected.
func (s *Session) SetMode(mode protocol.Mode) error {
	snap, changed, err := s.machine.SetMode(mode)
	if err != nil {
		return err
	}
	if changed {
		s.publish(snap)
	}
	return nil
}

// Enable asserts robot enable, subject to the state machine's guards.
func (s *Session) Enable() error {
	snap, changed, err := s.machine.Enable()
	if err != nil {
		return err
	}
	if changed {
		s.publish(snap)
	}
	return nil
}

// Disable drops the enable. Never rejected.
func (s *Session) Disable() {
	if snap, changed := s.machine.Disable(); changed {
		s.publish(snap)
	}
}

// EStop latches the emergency stop. Irreversible until ResetEStop plus a
// fresh round-trip.
func (s *Session) EStop() {
	if snap, changed := s.machine.EStop(); changed {
		log.Printf("WARN: [SESSION] E-stop latched.")
		s.publish(snap)
	}
}

// ResetEStop records the operator's intent to clear the e-stop latch. The
// latch clears on the next fresh Connecting→Connected round-trip.
func (s *Session) ResetEStop() {
	s.machine.ResetEStop()
}

// Reconnect re-enters Connecting after a watchdog timeout. The cycle keeps
// running either way; this only resets the externally visible link state.
func (s *Session) Reconnect() {
	if snap, changed := s.machine.StartConnecting(); changed {
		s.publish(snap)
	}
}

// RestartCode requests a robot-code restart on the next packet.
func (s *Session) RestartCode() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingReq.RestartCode = true
}

// RebootController requests a controller reboot on the next packet.
func (s *Session) RebootController() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingReq.RebootController = true
}

// SetCountdown attaches the time remaining in the current mode to every
// outgoing packet until cleared.
func (s *Session) SetCountdown(seconds float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.countdown = &seconds
}

// ClearCountdown stops sending the countdown tag.
func (s *Session) ClearCountdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.countdown = nil
}

// UpdateJoystick replaces the state of one joystick slot. The new values
// ride out with the next control packet; a descriptor frame is queued on the
// side-channel the first time a slot appears.
func (s *Session) UpdateJoystick(slot int, js protocol.Joysticks) error {
	if slot < 0 || slot >= maxJoysticks {
		return fmt.Errorf("joystick slot %d out of range 0..%d", slot, maxJoysticks-1)
	}

	s.mu.Lock()
	first := s.joysticks[slot] == nil
	s.joysticks[slot] = &js
	if slot+1 > s.stickCount {
		s.stickCount = slot + 1
	}
	s.mu.Unlock()

	if first {
		desc, err := protocol.NewJoystickDescriptor(protocol.JoystickDescriptor{
			Slot:        byte(slot),
			AxisCount:   byte(len(js.Axes)),
			ButtonCount: byte(len(js.Buttons)),
			POVCount:    byte(len(js.POVs)),
		})
		if err == nil {
			s.side.Queue(desc)
		}
	}
	return nil
}

// SendGameData queues the game-specific data frame.
func (s *Session) SendGameData(data string) error {
	if !s.side.Queue(protocol.NewGameData(data)) {
		return ErrSideChannelDown
	}
	return nil
}

// SendMatchInfo queues the match-info frame.
func (s *Session) SendMatchInfo(name string, mt protocol.MatchType) error {
	f, err := protocol.NewMatchInfo(name, mt)
	if err != nil {
		return err
	}
	if !s.side.Queue(f) {
		return ErrSideChannelDown
	}
	return nil
}

// OnConsole registers a consumer for robot console output frames.
func (s *Session) OnConsole(fn func(string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConsole = fn
}

// OnFrame registers a consumer for all other inbound side-channel frames.
func (s *Session) OnFrame(fn func(protocol.Frame)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFrame = fn
}

// ---------------------------------------------------------------------------
// Observation stream
// ---------------------------------------------------------------------------

// Observe subscribes to state-change updates. A slow observer loses updates
// rather than ever stalling the session.
func (s *Session) Observe(buffer int) (uuid.UUID, <-chan Update) {
	id := uuid.New()
	ch := make(chan Update, buffer)
	s.obsMu.Lock()
	s.observers[id] = ch
	s.obsMu.Unlock()
	return id, ch
}

// Unobserve removes a subscription.
func (s *Session) Unobserve(id uuid.UUID) {
	s.obsMu.Lock()
	delete(s.observers, id)
	s.obsMu.Unlock()
}

func (s *Session) publish(snap state.Snapshot) {
	s.mu.Lock()
	u := Update{
		Link:          snap.Link,
		Mode:          snap.Mode,
		Station:       snap.Station,
		StationSet:    snap.StationSet,
		Battery:       snap.Battery,
		Trace:         snap.Trace,
		Status:        s.lastStatus,
		SideChannelUp: s.sideUp,
	}
	s.mu.Unlock()

	metrics.LinkState.Set(float64(snap.Link))

	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	for _, ch := range s.observers {
		select {
		case ch <- u:
		default:
		}
	}
}

// ---------------------------------------------------------------------------
// Cycle loop
// ---------------------------------------------------------------------------

func (s *Session) run() {
	ticker := time.NewTicker(s.cfg.CyclePeriod())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick()
		case pkt := <-s.link.Statuses():
			s.handleStatus(pkt)
		case f := <-s.side.Frames():
			s.handleFrame(f)
		case up := <-s.side.Up():
			s.handleSideUp(up)
		case <-s.ctx.Done():
			return
		}
	}
}

// tick closes out the previous cycle's watchdog accounting and sends the
// packet for this cycle. The sequence number advances exactly once per tick
// whether or not the send succeeds.
func (s *Session) tick() {
	if !s.gotStatus {
		s.misses++
		metrics.MissedCycles.Inc()
		if s.misses >= s.cfg.MissThreshold {
			if snap, changed := s.machine.WatchdogTrip(); changed {
				log.Printf("WARN: [SESSION] Watchdog: %d consecutive cycles without status. Robot forced disabled.", s.misses)
				metrics.WatchdogTrips.Inc()
				s.publish(snap)
			}
		}
	} else {
		s.misses = 0
	}
	s.gotStatus = false

	data, err := protocol.EncodeControl(s.buildPacket())
	if err != nil {
		// Unreachable with machine-validated state; drop the cycle if not.
		log.Printf("ERROR: [SESSION] Failed to encode control packet: %v", err)
	} else if err := s.link.Send(data); err != nil {
		log.Printf("WARN: [SESSION] Send failed, counting as missed cycle: %v", err)
	} else {
		metrics.ControlPacketsSent.Inc()
	}
	s.seq++
}

// buildPacket assembles the control packet from the state as of tick-fire
// time: machine snapshot, queued one-shot request flags and tags, and the
// current joystick slots.
func (s *Session) buildPacket() *protocol.ControlPacket {
	snap := s.machine.Snapshot()

	s.mu.Lock()
	req := s.pendingReq
	s.pendingReq = protocol.Request{}
	tags := make([]protocol.Tag, 0, s.stickCount+len(s.oneShot)+1)
	for i := 0; i < s.stickCount; i++ {
		if js := s.joysticks[i]; js != nil {
			tags = append(tags, *js)
		} else {
			tags = append(tags, protocol.Joysticks{})
		}
	}
	if s.countdown != nil {
		tags = append(tags, protocol.Countdown{Seconds: *s.countdown})
	}
	tags = append(tags, s.oneShot...)
	s.oneShot = nil
	s.mu.Unlock()

	return &protocol.ControlPacket{
		Seq: s.seq,
		Control: protocol.Control{
			Mode:     snap.Mode.Mode,
			Enabled:  snap.Mode.Enabled,
			EStopped: snap.Mode.EStopped,
		},
		Request: req,
		Station: snap.Station,
		Tags:    tags,
	}
}

// handleStatus applies inbound telemetry. Queued datagrams are drained so
// only the newest by sequence is applied; late duplicates inside the stale
// window are discarded, and a regression beyond it is taken as a robot
// restart — logged, never link-breaking.
func (s *Session) handleStatus(pkt *protocol.StatusPacket) {
	for {
		select {
		case next := <-s.link.Statuses():
			if seqNewer(next.Seq, pkt.Seq) {
				pkt = next
			} else {
				metrics.StatusPacketsStale.Inc()
			}
			continue
		default:
		}
		break
	}

	if s.haveSeq {
		if behind := s.lastSeq - pkt.Seq; behind < staleWindow {
			metrics.StatusPacketsStale.Inc()
			return
		}
		if !seqNewer(pkt.Seq, s.lastSeq) {
			log.Printf("WARN: [SESSION] Status sequence regressed %d -> %d; assuming robot restart.", s.lastSeq, pkt.Seq)
		}
	}
	s.lastSeq = pkt.Seq
	s.haveSeq = true
	s.gotStatus = true
	s.misses = 0

	metrics.StatusPacketsReceived.Inc()
	metrics.BatteryVolts.Set(pkt.Battery.Float())

	if pkt.NeedDate {
		s.mu.Lock()
		s.oneShot = append(s.oneShot,
			protocol.DateTime{Time: time.Now()},
			protocol.Timezone{Name: "UTC"},
		)
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.lastStatus = pkt
	s.mu.Unlock()

	snap, changed := s.machine.HandleStatus(pkt)
	if changed {
		s.publish(snap)
	}
}

func (s *Session) handleFrame(f protocol.Frame) {
	s.mu.Lock()
	onConsole := s.onConsole
	onFrame := s.onFrame
	s.mu.Unlock()

	if msg, ok := protocol.ConsoleMessage(f); ok {
		if onConsole != nil {
			onConsole(msg)
		}
		return
	}
	if onFrame != nil {
		onFrame(f)
	}
}

func (s *Session) handleSideUp(up bool) {
	s.mu.Lock()
	s.sideUp = up
	s.mu.Unlock()
	if !up {
		log.Printf("WARN: [SESSION] Side-channel down. Joystick and game data suspended; control cycle unaffected.")
	}
	s.publish(s.machine.Snapshot())
}

// seqNewer implements serial-number comparison on the 16-bit sequence space.
func seqNewer(a, b uint16) bool {
	return a != b && a-b < 0x8000
}
