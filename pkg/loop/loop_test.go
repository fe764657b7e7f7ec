package loop

import (
	"context"
	"testing"
	"time"

	"github.com/pion/rtcp"
	"github.com/stretchr/testify/require"

	"github.com/mcfabric/mcfabric/pkg/rtpdispatch"
)

func TestCreateRejectsInvalidGroup(t *testing.T) {
	_, err := Create(context.Background(), "bad", "not-an-ip", 5004, nil)
	require.Error(t, err)
}

func TestSendReceiveAndEchoSuppression(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const group = "239.7.7.7"
	port := 15500 + int(time.Now().UnixNano()%500)

	receiver, err := Create(ctx, "loopA", group, port, nil)
	if err != nil {
		t.Skipf("multicast unavailable in this sandbox: %v", err)
	}
	defer receiver.Close()

	sender, err := Create(ctx, "loopA-sender", group, port, nil)
	require.NoError(t, err)
	defer sender.Close()

	// A valid RTP frame with a foreign SSRC must be delivered.
	foreign := rtpPacket(0xAABBCCDD, 1)
	_, err = sender.Send(foreign)
	require.NoError(t, err)

	select {
	case f := <-receiver.Frames():
		require.Equal(t, "loopA", f.LoopName)
	case <-time.After(2 * time.Second):
		t.Skip("no multicast delivery observed in this sandbox")
	}

	// A frame whose SSRC equals the sender's own local SSRC must never
	// reach the sender's own Frames() channel (P4, self-echo).
	self := rtpPacket(sender.LocalSSRC(), 2)
	_, err = sender.Send(self)
	require.NoError(t, err)

	select {
	case f := <-sender.Frames():
		t.Fatalf("unexpected self-echoed frame: %+v", f)
	case <-time.After(300 * time.Millisecond):
	}
}

// TestRTCPIsDeliveredNotDropped covers §4.2.1: RTCP datagrams must reach the
// Loop's owner (tagged KindRTCP) instead of being silently discarded, since
// the Mixer needs them to learn the peer's SSRC for echo cancellation.
func TestRTCPIsDeliveredNotDropped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const group = "239.7.7.8"
	port := 16000 + int(time.Now().UnixNano()%500)

	receiver, err := Create(ctx, "loopA", group, port, nil)
	if err != nil {
		t.Skipf("multicast unavailable in this sandbox: %v", err)
	}
	defer receiver.Close()

	sender, err := Create(ctx, "loopA-sender", group, port, nil)
	require.NoError(t, err)
	defer sender.Close()

	sr := &rtcp.SenderReport{SSRC: 0x1122}
	buf, err := sr.Marshal()
	require.NoError(t, err)
	_, err = sender.Send(buf)
	require.NoError(t, err)

	select {
	case f := <-receiver.Frames():
		require.Equal(t, rtpdispatch.KindRTCP, f.Kind)
		ssrc, ok := rtpdispatch.LearnPeerSSRC(f.Payload)
		require.True(t, ok)
		require.Equal(t, uint32(0x1122), ssrc)
	case <-time.After(2 * time.Second):
		t.Skip("no multicast delivery observed in this sandbox")
	}
}

func rtpPacket(ssrc uint32, seq uint16) []byte {
	buf := make([]byte, 12)
	buf[0] = 0x80
	buf[1] = 111
	buf[2] = byte(seq >> 8)
	buf[3] = byte(seq)
	buf[8] = byte(ssrc >> 24)
	buf[9] = byte(ssrc >> 16)
	buf[10] = byte(ssrc >> 8)
	buf[11] = byte(ssrc)
	return buf
}
