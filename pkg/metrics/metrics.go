// Package metrics wires the ambient Prometheus instrumentation (§1.1) shared
// by the mixer, registry and interconnect packages, grounded on the
// teacher's pkg/dialog/metrics.go.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every counter/gauge/histogram the fabric exposes. A single
// instance is constructed at fabric startup and threaded into each
// component's constructor.
type Metrics struct {
	MixTickDuration   prometheus.Histogram
	JitterBufferDrops prometheus.Counter
	RegistrySlotsLive prometheus.Gauge
	RegistrySlotsBound prometheus.Gauge
	HandshakeOutcomes *prometheus.CounterVec
	StunRoundTrips    prometheus.Counter
	CodecGCReclaimed  prometheus.Counter
}

// New registers every metric against reg and returns the bundle. Passing a
// fresh prometheus.NewRegistry() keeps tests hermetic.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MixTickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mcfabric",
			Subsystem: "mixer",
			Name:      "tick_duration_seconds",
			Help:      "Wall-clock duration of one mixer tick (decode-mix-encode-emit).",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		JitterBufferDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mcfabric",
			Subsystem: "mixer",
			Name:      "jitter_buffer_drops_total",
			Help:      "Frames evicted from a full per-SSRC jitter ring.",
		}),
		RegistrySlotsLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mcfabric",
			Subsystem: "registry",
			Name:      "slots_live",
			Help:      "Currently live (registered) mixer worker slots.",
		}),
		RegistrySlotsBound: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mcfabric",
			Subsystem: "registry",
			Name:      "slots_bound",
			Help:      "Currently session-bound mixer worker slots.",
		}),
		HandshakeOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcfabric",
			Subsystem: "interconnect",
			Name:      "dtls_handshake_outcomes_total",
			Help:      "DTLS handshake completions by outcome (ready, failed).",
		}, []string{"outcome"}),
		StunRoundTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mcfabric",
			Subsystem: "interconnect",
			Name:      "stun_keepalive_total",
			Help:      "STUN keepalive binding requests sent.",
		}),
		CodecGCReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mcfabric",
			Subsystem: "mixer",
			Name:      "codec_gc_reclaimed_total",
			Help:      "RTP Stream Entries reclaimed by the codec garbage collector.",
		}),
	}

	reg.MustRegister(
		m.MixTickDuration,
		m.JitterBufferDrops,
		m.RegistrySlotsLive,
		m.RegistrySlotsBound,
		m.HandshakeOutcomes,
		m.StunRoundTrips,
		m.CodecGCReclaimed,
	)
	return m
}
