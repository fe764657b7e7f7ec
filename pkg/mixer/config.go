package mixer

import (
	"time"

	"github.com/mcfabric/mcfabric/pkg/pcm"
)

// TickInterval is the mixer's fixed mix cadence (§4.2).
const TickInterval = 20 * time.Millisecond

// StaleStreamAge is the RTP Stream Entry reclamation age (§3, §4.2.7).
const StaleStreamAge = 300 * time.Second

// Config is the in-process mixer configuration, derived from §6.3's wire
// JSON object (decoded by cmd/fabricmixer's `configure` handler) plus the
// in-memory Forward target from `acquire`/`forward`.
type Config struct {
	VAD                  pcm.VADThresholds
	SampleRateHz         int
	ComfortNoiseDB       int
	FrameBufferSize      int
	NormalizeInput       bool
	RTPKeepalive         bool
	NormalizeMixedByRoot bool
	GCBatchSize          int

	OutputPayloadType uint8
}

// DefaultConfig mirrors set_config_defaults' values (supplemented from
// original_source, §4.2.9/§6.3).
func DefaultConfig() Config {
	return Config{
		VAD: pcm.VADThresholds{
			ZeroCrossingsHz: 500,
			PowerLevelDBFS:  -40,
			Enabled:         true,
			DropWhenNoVoice: false,
		},
		SampleRateHz:      48000,
		ComfortNoiseDB:    -60,
		FrameBufferSize:   10,
		NormalizeInput:    true,
		RTPKeepalive:      true,
		GCBatchSize:       10,
		OutputPayloadType: 111,
	}
}

// Forward is the output target a Mixer emits its mixed stream to (§6.1
// `acquire`/`forward`, GLOSSARY "Forward").
type Forward struct {
	Host        string
	Port        int
	SSRC        uint32
	PayloadType uint8
}
