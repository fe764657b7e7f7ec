package pcm

import "math"

// VADThresholds configures the voice-activity detector (§4.2.4, §6.3).
type VADThresholds struct {
	ZeroCrossingsHz   int
	PowerLevelDBFS    int
	Enabled           bool
	DropWhenNoVoice   bool
}

// VADResult carries the detector's verdict for one frame.
type VADResult struct {
	VoiceDetected   bool
	ZeroCrossingsHz float64
	PowerLevelDBFS  float64
}

// Detect computes the zero-crossing rate and power-level density of a PCM16
// frame at the given sample rate and compares both against the configured
// thresholds — frame_data_from_pcm_with_vad's detection step (§4.2.4).
// Voice is reported only when the zero-crossing rate is below the threshold
// (voiced speech crosses zero less often than noise/fricatives) AND the
// power level is above the (negative) dBFS floor.
func Detect(samples []int16, sampleRateHz int, th VADThresholds) VADResult {
	if len(samples) == 0 || sampleRateHz == 0 {
		return VADResult{}
	}

	crossings := 0
	var sumSquares float64
	for i, s := range samples {
		sumSquares += float64(s) * float64(s)
		if i == 0 {
			continue
		}
		if (samples[i-1] >= 0) != (s >= 0) {
			crossings++
		}
	}

	durationSec := float64(len(samples)) / float64(sampleRateHz)
	zcr := float64(crossings) / durationSec

	rms := math.Sqrt(sumSquares / float64(len(samples)))
	var dbfs float64
	if rms <= 0 {
		dbfs = -math.MaxFloat64
	} else {
		dbfs = 20 * math.Log10(rms/float64(int16Max))
	}

	voice := zcr <= float64(th.ZeroCrossingsHz) && dbfs >= float64(th.PowerLevelDBFS)

	return VADResult{VoiceDetected: voice, ZeroCrossingsHz: zcr, PowerLevelDBFS: dbfs}
}

// NormalizeGain scales a PCM16 frame so its peak sample reaches
// int16Max*volumePercent/100 — the VAD-normalized loudness gain of §4.2.4 —
// returning PCM32-widened samples ready for mixing.
func NormalizeGain(samples []int16, volumePercent int) []int32 {
	var peak int16
	for _, s := range samples {
		a := s
		if a < 0 {
			a = -a
		}
		if a > peak {
			peak = a
		}
	}
	out := make([]int32, len(samples))
	if peak == 0 {
		return out
	}
	target := float64(int16Max) * float64(volumePercent) / 100.0
	scale := target / float64(peak)
	for i, s := range samples {
		out[i] = int32(float64(s) * scale)
	}
	return out
}

// Fade applies a linear fade envelope across a PCM32 buffer: fadeIn ramps
// gain 0->1 across the whole frame (rising edge of voice_detected), fadeOut
// ramps 1->0 (falling edge) — fade_decoded_pcm_nocheck's Go equivalent.
func Fade(samples []int32, fadeIn bool) []int32 {
	n := len(samples)
	out := make([]int32, n)
	if n == 0 {
		return out
	}
	for i, s := range samples {
		var g float64
		if fadeIn {
			g = float64(i) / float64(n-1)
		} else {
			g = 1 - float64(i)/float64(n-1)
		}
		if n == 1 {
			g = 1
		}
		out[i] = int32(float64(s) * g)
	}
	return out
}
