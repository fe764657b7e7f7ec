package pcm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWidenGainAndNarrowClip(t *testing.T) {
	in := []int16{100, -100, int16Max, int16Min}
	widened := WidenGain(in, 50)
	require.Equal(t, []int32{50, -50, int16Max / 2, int16Min / 2}, widened)

	clipped := NarrowClip([]int32{40000, -40000, 10})
	require.Equal(t, []int16{int16Max, int16Min, 10}, clipped)
}

func TestMixSkipsMismatchedLength(t *testing.T) {
	a := []int32{1, 2, 3}
	b := []int32{10, 20, 30}
	mismatched := []int32{1, 2}

	out := Mix([][]int32{a, b, mismatched})
	require.Equal(t, []int32{11, 22, 33}, out)
}

func TestMixAllEmptyReturnsNil(t *testing.T) {
	require.Nil(t, Mix(nil))
	require.Nil(t, Mix([][]int32{{}, {}}))
}

func TestComfortNoiseAmplitudeMonotonic(t *testing.T) {
	loud := ComfortNoiseAmplitude(-10)
	quiet := ComfortNoiseAmplitude(-40)
	require.Greater(t, loud, quiet)
	require.LessOrEqual(t, loud, int16(int16Max))
}

func TestComfortNoiseFrame(t *testing.T) {
	frame := ComfortNoiseFrame(4, 123)
	require.Equal(t, []int16{123, 123, 123, 123}, frame)
}
