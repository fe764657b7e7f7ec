//go:build opus

package codec

import (
	opus "gopkg.in/hraban/opus.v2"

	"github.com/mcfabric/mcfabric/pkg/ferrors"
)

// opusCodec is the real Opus implementation, compiled only with -tags opus
// (requires cgo and libopus/libopusfile), matching the ubersdr split.
type opusCodec struct {
	cfg     Config
	encoder *opus.Encoder
	decoder *opus.Decoder
}

// New constructs the real Opus codec.
func New(cfg Config) (Codec, error) {
	enc, err := opus.NewEncoder(cfg.SampleRateHz, cfg.Channels, opus.AppVoIP)
	if err != nil {
		return nil, ferrors.New("codec.New", ferrors.CodeCodecUnsupported, err)
	}
	if err := enc.SetBitrate(cfg.BitrateBps); err != nil {
		return nil, ferrors.New("codec.New", ferrors.CodeCodecUnsupported, err)
	}
	if err := enc.SetComplexity(cfg.Complexity); err != nil {
		return nil, ferrors.New("codec.New", ferrors.CodeCodecUnsupported, err)
	}
	dec, err := opus.NewDecoder(cfg.SampleRateHz, cfg.Channels)
	if err != nil {
		return nil, ferrors.New("codec.New", ferrors.CodeCodecUnsupported, err)
	}
	return &opusCodec{cfg: cfg, encoder: enc, decoder: dec}, nil
}

func (c *opusCodec) Encode(pcm []int16) ([]byte, error) {
	out := make([]byte, 4000)
	n, err := c.encoder.Encode(pcm, out)
	if err != nil {
		return nil, ferrors.New("codec.Encode", ferrors.CodeCodecEncodeFailed, err)
	}
	return out[:n], nil
}

func (c *opusCodec) Decode(payload []byte) ([]int16, error) {
	frameSize := c.cfg.SampleRateHz / 50 * c.cfg.Channels // 20ms frame
	out := make([]int16, frameSize)
	n, err := c.decoder.Decode(payload, out)
	if err != nil {
		return nil, ferrors.New("codec.Decode", ferrors.CodeCodecDecodeFailed, err)
	}
	return out[:n*c.cfg.Channels], nil
}

func (c *opusCodec) SampleRate() int { return c.cfg.SampleRateHz }
func (c *opusCodec) Channels() int   { return c.cfg.Channels }
