// Package metrics implements the server runtime shell's Prometheus
// collectors (C14): purely observational gauges/counters that never gate
// protocol behavior, per the Non-goal excluding rate limiting.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Pads = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "peerlink_pads",
		Help: "Currently registered Peer-Linker pads.",
	})
	Channels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "peerlink_channels",
		Help: "Currently registered Channel-Hub channels.",
	})
	Sessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "peerlink_sessions",
		Help: "Currently connected broker sessions, across both broker roles.",
	})
	PendingLinks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "peerlink_pending_links",
		Help: "Peer-Linker links awaiting an AuthResponse.",
	})
	PendingPadRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "peerlink_pending_pad_requests",
		Help: "Channel-Hub RequestPad calls awaiting a PadCreated reply.",
	})

	FramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peerlink_frames_total",
		Help: "Reply frames the server shell wrote back on a session's own connection, by wire type.",
	}, []string{"type"})

	ProtocolErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peerlink_protocol_errors_total",
		Help: "Error replies the server shell wrote back (unknown type, failed handler, NotActivated, ...); errors a broker writes to another session are not counted.",
	})
)

// Handler returns the /metrics HTTP handler for the server shell's optional
// metrics listener.
func Handler() http.Handler { return promhttp.Handler() }
