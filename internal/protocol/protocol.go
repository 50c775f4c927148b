// Package protocol implements the FRC Driver-Station wire format: the cyclic
// UDP control/status packet pair and the length-prefixed tagged frames carried
// over the TCP side-channel. The package is pure encode/decode — it owns no
// sockets and no state.
package protocol

const (
	// Version is the comm version byte carried by every UDP packet.
	Version byte = 0x01

	// UDPControlPort is the robot-side port control packets are sent to.
	UDPControlPort = 1110
	// UDPStatusPort is the station-side port status packets arrive on.
	UDPStatusPort = 1150
	// TCPPort is the robot-side port of the persistent side-channel stream.
	TCPPort = 1740
)

// Control packet flag bits.
const (
	controlEStop    byte = 0x80
	controlFMS      byte = 0x08
	controlEnabled  byte = 0x04
	controlModeBits byte = 0x03
)

// Request flag bits.
const (
	requestReboot      byte = 0x08
	requestRestartCode byte = 0x04
)

// Status packet flag bits.
const (
	statusEStop    byte = 0x80
	statusBrownout byte = 0x10
	statusCodeRun  byte = 0x08
	statusEnabled  byte = 0x04
	statusModeBits byte = 0x03
)

// Mode is the robot operating mode carried in the low two bits of the
// control and status flag bytes.
type Mode byte

const (
	ModeTeleop     Mode = 0
	ModeTest       Mode = 1
	ModeAutonomous Mode = 2
)

func (m Mode) valid() bool {
	return m <= ModeAutonomous
}

func (m Mode) String() string {
	switch m {
	case ModeTeleop:
		return "teleop"
	case ModeTest:
		return "test"
	case ModeAutonomous:
		return "autonomous"
	}
	return "invalid"
}

// AllianceStation identifies one of the six fixed competition positions.
// The byte values are the on-wire encoding.
type AllianceStation byte

const (
	StationRed1 AllianceStation = iota
	StationRed2
	StationRed3
	StationBlue1
	StationBlue2
	StationBlue3
)

// RedStation returns the station for position 1..3 on the red alliance.
func RedStation(position int) AllianceStation {
	return AllianceStation(position - 1)
}

// BlueStation returns the station for position 1..3 on the blue alliance.
func BlueStation(position int) AllianceStation {
	return AllianceStation(position + 2)
}

// IsRed reports whether the station is on the red alliance.
func (a AllianceStation) IsRed() bool {
	return a <= StationRed3
}

// Position returns the 1-based position within the alliance.
func (a AllianceStation) Position() int {
	return int(a)%3 + 1
}

// Valid reports whether the byte value maps to one of the six stations.
func (a AllianceStation) Valid() bool {
	return a <= StationBlue3
}

func (a AllianceStation) String() string {
	if !a.Valid() {
		return "invalid"
	}
	colour := "red"
	if !a.IsRed() {
		colour = "blue"
	}
	return colour + string(rune('0'+a.Position()))
}

// Control is the commanded robot state carried by every control packet.
// EStopped implies not Enabled, and the mode value must be one of the three
// defined modes; Validate enforces both.
type Control struct {
	Mode         Mode
	Enabled      bool
	EStopped     bool
	FMSConnected bool
}

// Validate checks the flag combination for internal consistency.
func (c Control) Validate() error {
	if !c.Mode.valid() {
		return newDecodeError(ErrInvalidFlagCombination, "mode value %d", c.Mode)
	}
	if c.EStopped && c.Enabled {
		return newDecodeError(ErrInvalidFlagCombination, "e-stop with enabled set")
	}
	return nil
}

func (c Control) encode() byte {
	b := byte(c.Mode) & controlModeBits
	if c.Enabled {
		b |= controlEnabled
	}
	if c.EStopped {
		b |= controlEStop
	}
	if c.FMSConnected {
		b |= controlFMS
	}
	return b
}

func decodeControlFlags(b byte) (Control, error) {
	c := Control{
		Mode:         Mode(b & controlModeBits),
		Enabled:      b&controlEnabled != 0,
		EStopped:     b&controlEStop != 0,
		FMSConnected: b&controlFMS != 0,
	}
	if err := c.Validate(); err != nil {
		return Control{}, err
	}
	return c, nil
}

// Request carries the one-shot robot maintenance requests.
type Request struct {
	RebootController bool
	RestartCode      bool
}

func (r Request) encode() byte {
	var b byte
	if r.RebootController {
		b |= requestReboot
	}
	if r.RestartCode {
		b |= requestRestartCode
	}
	return b
}

func decodeRequest(b byte) Request {
	return Request{
		RebootController: b&requestReboot != 0,
		RestartCode:      b&requestRestartCode != 0,
	}
}

// Status is the robot-reported health carried by every status packet.
type Status struct {
	Mode        Mode
	Enabled     bool
	EStopped    bool
	Brownout    bool
	CodeRunning bool
}

func (s Status) encode() byte {
	b := byte(s.Mode) & statusModeBits
	if s.Enabled {
		b |= statusEnabled
	}
	if s.EStopped {
		b |= statusEStop
	}
	if s.Brownout {
		b |= statusBrownout
	}
	if s.CodeRunning {
		b |= statusCodeRun
	}
	return b
}

func decodeStatusFlags(b byte) (Status, error) {
	s := Status{
		Mode:        Mode(b & statusModeBits),
		Enabled:     b&statusEnabled != 0,
		EStopped:    b&statusEStop != 0,
		Brownout:    b&statusBrownout != 0,
		CodeRunning: b&statusCodeRun != 0,
	}
	if !s.Mode.valid() {
		return Status{}, newDecodeError(ErrInvalidFlagCombination, "status mode value %d", s.Mode)
	}
	if s.EStopped && s.Enabled {
		return Status{}, newDecodeError(ErrInvalidFlagCombination, "status e-stop with enabled set")
	}
	return s, nil
}

// Trace is the diagnostic trace byte reported by the robot.
type Trace byte

const (
	traceRobotCode  Trace = 0x20
	traceIsRoboRIO  Trace = 0x10
	traceTest       Trace = 0x08
	traceAutonomous Trace = 0x04
	traceTeleop     Trace = 0x02
	traceDisabled   Trace = 0x01
)

func (t Trace) RobotCode() bool  { return t&traceRobotCode != 0 }
func (t Trace) IsRoboRIO() bool  { return t&traceIsRoboRIO != 0 }
func (t Trace) Test() bool       { return t&traceTest != 0 }
func (t Trace) Autonomous() bool { return t&traceAutonomous != 0 }
func (t Trace) Teleop() bool     { return t&traceTeleop != 0 }
func (t Trace) Disabled() bool   { return t&traceDisabled != 0 }

// Voltage is the battery voltage in the wire's fixed-point form:
// whole volts plus a fraction in 1/256ths.
type Voltage struct {
	Volts    byte
	Fraction byte
}

// VoltageFromFloat converts a voltage to fixed-point, rounding the fraction
// to the nearest 1/256 and carrying into the whole part when it rounds up
// to a full volt.
func VoltageFromFloat(v float64) Voltage {
	if v < 0 {
		return Voltage{}
	}
	whole := int(v)
	frac := int((v-float64(whole))*256 + 0.5)
	if frac == 256 {
		whole++
		frac = 0
	}
	if whole > 255 {
		return Voltage{Volts: 255, Fraction: 255}
	}
	return Voltage{Volts: byte(whole), Fraction: byte(frac)}
}

// Float returns the voltage as a float64.
func (v Voltage) Float() float64 {
	return float64(v.Volts) + float64(v.Fraction)/256
}
