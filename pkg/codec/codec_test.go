package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStubCodecRoundTrip(t *testing.T) {
	c, err := New(DefaultConfig())
	require.NoError(t, err)

	pcm := []int16{1, -1, 32767, -32768, 0}
	encoded, err := c.Encode(pcm)
	require.NoError(t, err)

	decoded, err := c.Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, pcm, decoded)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 48000, cfg.SampleRateHz)
	require.Equal(t, 2, cfg.Channels)
}
