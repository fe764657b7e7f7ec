package interconnect

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func rtpFixture(ssrc uint32, marker bool, pt byte) []byte {
	buf := make([]byte, 16)
	buf[0] = 0x80
	buf[1] = pt & 0x7f
	if marker {
		buf[1] |= 0x80
	}
	binary.BigEndian.PutUint32(buf[8:12], ssrc)
	return buf
}

func TestLoopTableLookupByNameAndRemoteSSRC(t *testing.T) {
	lt := newLoopTable()
	lt.set(loopBridge{name: "loop-a", localSSRC: 1, remoteSSRC: 2})

	b, ok := lt.byLoopName("loop-a")
	require.True(t, ok)
	require.Equal(t, uint32(1), b.localSSRC)

	name, ok := lt.nameForRemoteSSRC(2)
	require.True(t, ok)
	require.Equal(t, "loop-a", name)

	_, ok = lt.nameForRemoteSSRC(999)
	require.False(t, ok)
}

func TestRewriteSSRCInPlace(t *testing.T) {
	buf := rtpFixture(42, false, 10)
	require.NoError(t, rewriteSSRC(buf, 99))
	require.Equal(t, uint32(99), binary.BigEndian.Uint32(buf[8:12]))

	require.Error(t, rewriteSSRC(buf[:4], 1))
}

func TestForcePayloadTypePreservesMarker(t *testing.T) {
	buf := rtpFixture(1, true, 10)
	require.NoError(t, forcePayloadType(buf, bridgePayloadType))
	require.Equal(t, byte(bridgePayloadType), buf[1]&0x7f)
	require.True(t, buf[1]&0x80 != 0, "marker bit must survive")

	buf2 := rtpFixture(1, false, 10)
	require.NoError(t, forcePayloadType(buf2, bridgePayloadType))
	require.True(t, buf2[1]&0x80 == 0, "marker bit must stay clear")
}
