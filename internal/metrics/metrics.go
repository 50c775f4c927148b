// Package metrics exposes Prometheus instrumentation for the protocol
// engine. Everything registers on the default registry under the dslink
// namespace.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dslink"

var (
	// ControlPacketsSent counts outbound UDP control packets.
	ControlPacketsSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "control_packets_sent_total",
		Help:      "Control packets sent to the robot.",
	})

	// StatusPacketsReceived counts well-formed inbound status packets.
	StatusPacketsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "status_packets_received_total",
		Help:      "Well-formed status packets received from the robot.",
	})

	// StatusPacketsStale counts status packets discarded by sequence
	// comparison.
	StatusPacketsStale = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "status_packets_stale_total",
		Help:      "Status packets discarded as out-of-order or duplicate.",
	})

	// DecodeErrors counts packets and frames dropped as malformed, by
	// transport.
	DecodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decode_errors_total",
		Help:      "Inbound packets or frames dropped as malformed.",
	}, []string{"transport"})

	// MissedCycles counts cycles that ended without a status packet.
	MissedCycles = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "missed_cycles_total",
		Help:      "Control cycles with no status packet received.",
	})

	// WatchdogTrips counts miss-threshold crossings that forced NoLink.
	WatchdogTrips = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "watchdog_trips_total",
		Help:      "Watchdog timeouts that forced the robot disabled.",
	})

	// SideChannelReconnects counts TCP side-channel reconnect attempts.
	SideChannelReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sidechannel_reconnects_total",
		Help:      "TCP side-channel reconnect attempts.",
	})

	// BatteryVolts is the last reported battery voltage.
	BatteryVolts = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "battery_volts",
		Help:      "Last battery voltage reported by the robot.",
	})

	// LinkState is the current connection state (0 no-link, 1 connecting,
	// 2 connected).
	LinkState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "link_state",
		Help:      "Connection state: 0 no-link, 1 connecting, 2 connected.",
	})
)
