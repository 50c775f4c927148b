// Package config loads the driver-station configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alloy-robotics/dslink/internal/protocol"
)

// usbAddress is where the robot controller answers when tethered over USB.
const usbAddress = "172.22.11.2"

// Config holds the entire application configuration, loaded from a YAML file.
// Zero values for ports and timings take protocol defaults.
type Config struct {
	TeamNumber   int    `yaml:"teamNumber"`
	RobotAddress string `yaml:"robotAddress"` // overrides the team-derived address
	UseUSB       bool   `yaml:"useUSB"`       // target the USB tether address

	AllianceStation string `yaml:"allianceStation"` // "red1".."blue3", optional

	CyclePeriodMillis int `yaml:"cyclePeriodMillis"`
	MissThreshold     int `yaml:"missThreshold"`

	ControlPort     int `yaml:"controlPort"`
	StatusPort      int `yaml:"statusPort"`
	SideChannelPort int `yaml:"sideChannelPort"`

	SideChannelMaxBackoffSeconds int `yaml:"sideChannelMaxBackoffSeconds"`

	MetricsListenAddress string `yaml:"metricsListenAddress"` // optional, e.g. ":9090"
}

// CyclePeriod returns the control cycle period as a time.Duration.
func (c *Config) CyclePeriod() time.Duration {
	return time.Duration(c.CyclePeriodMillis) * time.Millisecond
}

// SideChannelMaxBackoff returns the reconnect backoff ceiling.
func (c *Config) SideChannelMaxBackoff() time.Duration {
	return time.Duration(c.SideChannelMaxBackoffSeconds) * time.Second
}

// RobotAddr resolves the robot host: explicit override first, then the USB
// tether address, then the address derived from the team number.
func (c *Config) RobotAddr() string {
	if c.RobotAddress != "" {
		return c.RobotAddress
	}
	if c.UseUSB {
		return usbAddress
	}
	addr, _ := AddressForTeam(c.TeamNumber)
	return addr
}

// Station parses the configured alliance station. The second return is false
// when no station is configured.
func (c *Config) Station() (protocol.AllianceStation, bool, error) {
	if c.AllianceStation == "" {
		return 0, false, nil
	}
	st, err := ParseStation(c.AllianceStation)
	if err != nil {
		return 0, false, err
	}
	return st, true, nil
}

// ParseStation maps "red1".."blue3" to the wire encoding.
func ParseStation(s string) (protocol.AllianceStation, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	var colour string
	switch {
	case strings.HasPrefix(name, "red"):
		colour = "red"
	case strings.HasPrefix(name, "blue"):
		colour = "blue"
	default:
		return 0, fmt.Errorf("invalid alliance station %q", s)
	}
	pos := strings.TrimPrefix(name, colour)
	if pos != "1" && pos != "2" && pos != "3" {
		return 0, fmt.Errorf("invalid alliance station %q", s)
	}
	position := int(pos[0] - '0')
	if colour == "red" {
		return protocol.RedStation(position), nil
	}
	return protocol.BlueStation(position), nil
}

// AddressForTeam derives the robot address 10.TE.AM.2 from the team number.
func AddressForTeam(team int) (string, error) {
	if team <= 0 || team >= 100000 {
		return "", fmt.Errorf("team number %d out of range", team)
	}
	return fmt.Sprintf("10.%d.%d.2", team/100, team%100), nil
}

// applyDefaults fills in protocol defaults for unset fields.
func (c *Config) applyDefaults() {
	if c.CyclePeriodMillis == 0 {
		c.CyclePeriodMillis = 20
	}
	if c.MissThreshold == 0 {
		c.MissThreshold = 25
	}
	if c.ControlPort == 0 {
		c.ControlPort = protocol.UDPControlPort
	}
	if c.StatusPort == 0 {
		c.StatusPort = protocol.UDPStatusPort
	}
	if c.SideChannelPort == 0 {
		c.SideChannelPort = protocol.TCPPort
	}
	if c.SideChannelMaxBackoffSeconds == 0 {
		c.SideChannelMaxBackoffSeconds = 5
	}
}

// validate performs comprehensive validation of the loaded configuration.
func (c *Config) validate() error {
	if c.RobotAddress == "" && !c.UseUSB {
		if _, err := AddressForTeam(c.TeamNumber); err != nil {
			return fmt.Errorf("teamNumber must be set (or robotAddress given): %w", err)
		}
	}
	if c.CyclePeriodMillis < 0 {
		return fmt.Errorf("cyclePeriodMillis cannot be negative")
	}
	if c.MissThreshold < 1 {
		return fmt.Errorf("missThreshold must be at least 1")
	}
	if c.SideChannelMaxBackoffSeconds < 0 {
		return fmt.Errorf("sideChannelMaxBackoffSeconds cannot be negative")
	}
	if c.AllianceStation != "" {
		if _, err := ParseStation(c.AllianceStation); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the configuration from the given file path, unmarshals it,
// applies defaults, and performs validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file at %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml from %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with protocol defaults for the given team.
func Default(team int) *Config {
	cfg := &Config{TeamNumber: team}
	cfg.applyDefaults()
	return cfg
}
