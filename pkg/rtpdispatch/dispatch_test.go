package rtpdispatch

import (
	"testing"

	"github.com/pion/rtcp"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		buf  []byte
		want Kind
	}{
		{"stun", []byte{0x00, 0x01, 0x00, 0x00}, KindSTUN},
		{"zrtp", []byte{17, 0x00}, KindZRTP},
		{"dtls", []byte{20, 0x00}, KindDTLS},
		{"turn", []byte{70, 0x00}, KindTURN},
		{"rtp", []byte{0x80, 111}, KindRTP},
		{"rtcp-sr", []byte{0x80, 200}, KindRTCP},
		{"rtcp-app", []byte{0x80, 204}, KindRTCP},
		{"unknown-high", []byte{250, 0}, KindUnknown},
		{"empty", []byte{}, KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Classify(tc.buf))
		})
	}
}

func TestExtractSSRC(t *testing.T) {
	buf := make([]byte, 12)
	buf[0] = 0x80
	buf[1] = 111
	buf[8], buf[9], buf[10], buf[11] = 0x00, 0x00, 0x01, 0x02

	ssrc, ok := ExtractSSRC(buf)
	require.True(t, ok)
	require.Equal(t, uint32(0x00000102), ssrc)

	_, ok = ExtractSSRC(buf[:4])
	require.False(t, ok)
}

func TestLearnPeerSSRC(t *testing.T) {
	sr := &rtcp.SenderReport{SSRC: 0xdeadbeef}
	buf, err := sr.Marshal()
	require.NoError(t, err)

	ssrc, ok := LearnPeerSSRC(buf)
	require.True(t, ok)
	require.Equal(t, uint32(0xdeadbeef), ssrc)

	bye := &rtcp.Goodbye{Sources: []uint32{0x1234}}
	buf, err = bye.Marshal()
	require.NoError(t, err)
	ssrc, ok = LearnPeerSSRC(buf)
	require.True(t, ok)
	require.Equal(t, uint32(0x1234), ssrc)

	_, ok = LearnPeerSSRC([]byte{0x01, 0x02})
	require.False(t, ok)
}
