// Package codec wraps the Opus codec as the black-box encode/decode
// contract §1 describes: this module never reimplements Opus, only adapts
// gopkg.in/hraban/opus.v2 behind a small interface, following the build-tag
// split the ubersdr example uses for its optional Opus support.
package codec

import "github.com/mcfabric/mcfabric/pkg/ferrors"

// Codec is the per-stream encode/decode contract the mixer treats as a black
// box, grounded on gopkg.in/hraban/opus.v2's Encoder/Decoder pair.
type Codec interface {
	// Encode turns one PCM16 frame into an encoded payload.
	Encode(pcm []int16) ([]byte, error)
	// Decode turns one encoded payload back into PCM16 at the codec's
	// configured sample rate and channel count.
	Decode(payload []byte) ([]int16, error)
	// SampleRate is the codec's configured sample rate in Hz.
	SampleRate() int
	// Channels is the codec's configured channel count.
	Channels() int
}

// Config parameterizes codec construction; defaults match §6.2's
// "opus/48000/2".
type Config struct {
	SampleRateHz int
	Channels     int
	BitrateBps   int
	Complexity   int
}

// DefaultConfig returns opus/48000/2 with a conservative VOIP bitrate.
func DefaultConfig() Config {
	return Config{
		SampleRateHz: 48000,
		Channels:     2,
		BitrateBps:   32000,
		Complexity:   8,
	}
}

// errNotAvailable is returned by the stub codec's Decode (used when the
// module is built without the `opus` tag, no libopus/cgo present) for a
// payload of odd length, which cannot hold whole PCM16 samples.
var errNotAvailable = ferrors.New("codec.Opus", ferrors.CodeCodecUnsupported,
	errOpusBuildTagMissing{})

type errOpusBuildTagMissing struct{}

func (errOpusBuildTagMissing) Error() string {
	return "opus codec unavailable: build with -tags opus and libopus installed"
}
