package pcm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectLoudLowFrequencyIsVoice(t *testing.T) {
	// A slowly alternating, loud signal: few zero crossings, high power.
	samples := make([]int16, 960) // 20ms @ 48kHz
	for i := range samples {
		if (i/480)%2 == 0 {
			samples[i] = 20000
		} else {
			samples[i] = -20000
		}
	}
	th := VADThresholds{ZeroCrossingsHz: 500, PowerLevelDBFS: -30}
	res := Detect(samples, 48000, th)
	require.True(t, res.VoiceDetected)
}

func TestDetectSilenceIsNotVoice(t *testing.T) {
	samples := make([]int16, 960)
	th := VADThresholds{ZeroCrossingsHz: 500, PowerLevelDBFS: -30}
	res := Detect(samples, 48000, th)
	require.False(t, res.VoiceDetected)
}

func TestNormalizeGainPeaksAtTarget(t *testing.T) {
	samples := []int16{1000, -2000, 500}
	out := NormalizeGain(samples, 100)
	require.InDelta(t, int16Max, -out[1], 1)
}

func TestFadeInOut(t *testing.T) {
	samples := []int32{1000, 1000, 1000}
	in := Fade(samples, true)
	require.Equal(t, int32(0), in[0])
	require.Equal(t, int32(1000), in[len(in)-1])

	out := Fade(samples, false)
	require.Equal(t, int32(1000), out[0])
	require.Equal(t, int32(0), out[len(out)-1])
}
