// Package rtpdispatch classifies datagrams arriving on a shared media socket
// per RFC 7983, the same byte-range test the mixer, the loop endpoint and the
// interconnect session all need on their respective sockets.
package rtpdispatch

import (
	"encoding/binary"

	"github.com/pion/rtcp"
)

// Kind is the demultiplexed protocol family of a raw datagram.
type Kind int

const (
	KindUnknown Kind = iota
	KindSTUN
	KindZRTP
	KindDTLS
	KindTURN
	KindRTP
	KindRTCP
)

func (k Kind) String() string {
	switch k {
	case KindSTUN:
		return "stun"
	case KindZRTP:
		return "zrtp"
	case KindDTLS:
		return "dtls"
	case KindTURN:
		return "turn"
	case KindRTP:
		return "rtp"
	case KindRTCP:
		return "rtcp"
	default:
		return "unknown"
	}
}

// rtcpPacketTypeLow and rtcpPacketTypeHigh bound the RTCP packet-type byte
// range (SR=200, RR=201, SDES=202, BYE=203, APP=204) per RFC 3550 §6.
const (
	rtcpPacketTypeLow  = 200
	rtcpPacketTypeHigh = 204
)

// Classify implements the RFC 7983 first-byte/second-byte dispatch table
// from §4.2.1: STUN 0-3, ZRTP 16-19, DTLS 20-63, TURN 64-79, RTP/RTCP
// 128-191 (disambiguated by the second byte's packet-type value).
func Classify(buf []byte) Kind {
	if len(buf) == 0 {
		return KindUnknown
	}
	b0 := buf[0]
	switch {
	case b0 <= 3:
		return KindSTUN
	case b0 >= 16 && b0 <= 19:
		return KindZRTP
	case b0 >= 20 && b0 <= 63:
		return KindDTLS
	case b0 >= 64 && b0 <= 79:
		return KindTURN
	case b0 >= 128 && b0 <= 191:
		if len(buf) < 2 {
			return KindUnknown
		}
		pt := buf[1]
		if pt >= rtcpPacketTypeLow && pt <= rtcpPacketTypeHigh {
			return KindRTCP
		}
		return KindRTP
	default:
		return KindUnknown
	}
}

// IsRTCPPacketType reports whether a datagram's full second byte (the RTCP
// packet type, compared with the marker bit included) falls in the RTCP
// SR..APP range 200..204, matching the table in §4.2.1.
func IsRTCPPacketType(b byte) bool {
	return b >= rtcpPacketTypeLow && b <= rtcpPacketTypeHigh
}

// LearnPeerSSRC parses an RTCP compound packet and returns the sender/source
// SSRC carried by its first packet, used solely to learn the peer's SSRC for
// echo cancellation (§4.2.1) — no other RTCP field is interpreted.
func LearnPeerSSRC(buf []byte) (uint32, bool) {
	packets, err := rtcp.Unmarshal(buf)
	if err != nil || len(packets) == 0 {
		return 0, false
	}
	switch p := packets[0].(type) {
	case *rtcp.SenderReport:
		return p.SSRC, true
	case *rtcp.ReceiverReport:
		return p.SSRC, true
	case *rtcp.SourceDescription:
		if len(p.Chunks) == 0 {
			return 0, false
		}
		return p.Chunks[0].Source, true
	case *rtcp.Goodbye:
		if len(p.Sources) == 0 {
			return 0, false
		}
		return p.Sources[0], true
	default:
		return 0, false
	}
}

// ExtractSSRC reads the SSRC field (bytes 8-11) directly out of an RTP
// header without a full parse — used on the hot echo-suppression path in
// C1, where allocating a full pion/rtp.Packet per datagram would be wasted
// work for frames that get dropped immediately.
func ExtractSSRC(buf []byte) (uint32, bool) {
	if len(buf) < 12 {
		return 0, false
	}
	return binary.BigEndian.Uint32(buf[8:12]), true
}
