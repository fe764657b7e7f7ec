// Package pcm implements the DSP primitives the session mixer applies on
// every decoded frame: PCM16<->PCM32 widening/narrowing, gain, the
// zero-crossing/power-level VAD, fade in/out and sample-wise mixing.
//
// This is treated as stdlib-only math (see DESIGN.md): there is no VAD or
// PCM-mixing library anywhere in the example corpus to ground an ecosystem
// dependency on; the only audio library the corpus uses is the Opus codec
// itself (pkg/codec), which is a black box per §1.
package pcm

import "math"

const (
	int16Max = math.MaxInt16
	int16Min = math.MinInt16
)

// WidenGain converts PCM16 to PCM32 while applying a linear gain factor
// (volume/100), matching frame_data_from_pcm's "plain gain" mode (§4.2.4).
func WidenGain(in []int16, volumePercent int) []int32 {
	gain := float64(volumePercent) / 100.0
	out := make([]int32, len(in))
	for i, s := range in {
		out[i] = int32(float64(s) * gain)
	}
	return out
}

// NarrowClip converts PCM32 back to PCM16, clipping to the int16 range —
// ov_pcm_32_clip_to_16's Go equivalent, used just before encode (§4.2.6).
func NarrowClip(in []int32) []int16 {
	out := make([]int16, len(in))
	for i, s := range in {
		switch {
		case s > int16Max:
			out[i] = int16Max
		case s < int16Min:
			out[i] = int16Min
		default:
			out[i] = int16(s)
		}
	}
	return out
}

// Mix sums same-length PCM32 buffers sample-wise. Buffers whose length does
// not match the first non-empty buffer (the tick's reference length) are
// skipped entirely, per §4.2.5.
func Mix(buffers [][]int32) []int32 {
	var refLen int
	for _, b := range buffers {
		if len(b) > 0 {
			refLen = len(b)
			break
		}
	}
	if refLen == 0 {
		return nil
	}
	out := make([]int32, refLen)
	for _, b := range buffers {
		if len(b) != refLen {
			continue
		}
		for i, s := range b {
			out[i] += s
		}
	}
	return out
}

// ComfortNoiseAmplitude converts a negative dB level into a linear PCM16
// amplitude, following set_config_defaults' get_max_amplitude rule: every
// 10 dB of power corresponds to a halving in amplitude (power ~ amplitude^2,
// so a 20 dB drop in level ~ a 10 dB drop in power).
func ComfortNoiseAmplitude(levelDB int) int16 {
	if levelDB >= 0 {
		return int16Max
	}
	halvings := float64(-levelDB) / 20.0
	amp := float64(int16Max) / math.Pow(2, halvings)
	if amp > int16Max {
		return int16Max
	}
	if amp < 0 {
		return 0
	}
	return int16(amp)
}

// ComfortNoiseFrame returns a flat-amplitude comfort-noise buffer of the
// given sample count, precomputed once per Mixer and reused verbatim on
// every silent tick (P6).
func ComfortNoiseFrame(samples int, amplitude int16) []int16 {
	out := make([]int16, samples)
	for i := range out {
		out[i] = amplitude
	}
	return out
}
