//go:build !opus

package codec

// stubCodec is used for builds without libopus/cgo. It passes PCM through
// unencoded (treating the "encoded payload" as raw PCM16 bytes) so the rest
// of the pipeline — jitter buffer, mixer, emitter — stays exercisable in
// environments without the Opus toolchain installed, matching the ubersdr
// example's PCM fallback.
type stubCodec struct {
	cfg Config
}

// New constructs the stub codec. Build with -tags opus for the real one.
func New(cfg Config) (Codec, error) {
	return &stubCodec{cfg: cfg}, nil
}

func (c *stubCodec) Encode(pcm []int16) ([]byte, error) {
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		out[2*i] = byte(s)
		out[2*i+1] = byte(s >> 8)
	}
	return out, nil
}

func (c *stubCodec) Decode(payload []byte) ([]int16, error) {
	if len(payload)%2 != 0 {
		return nil, errNotAvailable
	}
	out := make([]int16, len(payload)/2)
	for i := range out {
		out[i] = int16(payload[2*i]) | int16(payload[2*i+1])<<8
	}
	return out, nil
}

func (c *stubCodec) SampleRate() int { return c.cfg.SampleRateHz }
func (c *stubCodec) Channels() int   { return c.cfg.Channels }
