package mixer

import (
	"time"

	"github.com/mcfabric/mcfabric/pkg/codec"
)

// streamEntry is the per-incoming-SSRC RTP Stream Entry (§3): a decoder, a
// voice_detected latch used to drive fade in/out, and a staleness clock used
// by the codec garbage collector (§4.2.7).
type streamEntry struct {
	ssrc          uint32
	decoder       codec.Codec
	voiceDetected bool
	lastUsed      time.Time
}

func newStreamEntry(ssrc uint32, dec codec.Codec) *streamEntry {
	return &streamEntry{ssrc: ssrc, decoder: dec, lastUsed: time.Now()}
}

func (s *streamEntry) touch() { s.lastUsed = time.Now() }

func (s *streamEntry) staleSince(now time.Time, age time.Duration) bool {
	return now.Sub(s.lastUsed) > age
}
