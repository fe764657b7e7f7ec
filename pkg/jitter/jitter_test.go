package jitter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutAndDrainOneFramePerSSRC(t *testing.T) {
	b := New(DefaultConfig())
	b.Put(1, Frame{SeqNum: 1})
	b.Put(1, Frame{SeqNum: 2})
	b.Put(2, Frame{SeqNum: 10})

	out := b.Drain()
	require.Len(t, out, 2)
	require.Equal(t, uint16(1), out[1].SeqNum)
	require.Equal(t, uint16(10), out[2].SeqNum)

	require.Equal(t, 1, b.Depth(1))
	require.Equal(t, 0, b.Depth(2))
}

func TestOverflowEvictsOldest(t *testing.T) {
	b := New(Config{BufferSize: 2})
	_, evicted := b.Put(1, Frame{SeqNum: 1})
	require.False(t, evicted)
	_, evicted = b.Put(1, Frame{SeqNum: 2})
	require.False(t, evicted)
	old, evicted := b.Put(1, Frame{SeqNum: 3})
	require.True(t, evicted)
	require.Equal(t, uint16(1), old.SeqNum)

	require.Equal(t, 2, b.Depth(1))
}

func TestDrainSkipsEmptyRings(t *testing.T) {
	b := New(DefaultConfig())
	b.Put(5, Frame{SeqNum: 1})
	first := b.Drain()
	require.Len(t, first, 1)

	second := b.Drain()
	require.Len(t, second, 0)
}

func TestForget(t *testing.T) {
	b := New(DefaultConfig())
	b.Put(9, Frame{SeqNum: 1})
	b.Forget(9)
	require.Equal(t, 0, b.Depth(9))
}
