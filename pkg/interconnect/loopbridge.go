package interconnect

import (
	"encoding/binary"
	"sync"

	"github.com/mcfabric/mcfabric/pkg/ferrors"
)

// bridgePayloadType is forced onto every outbound bridged frame's
// payload-type low 7 bits, marking it as bridge-internal traffic (§4.4.4).
const bridgePayloadType = 100

// loopBridge is one loop's local<->remote SSRC pair, established by
// connect_loops (§4.4.1, §4.4.3).
type loopBridge struct {
	name       string
	localSSRC  uint32
	remoteSSRC uint32
}

// loopTable is the mutually-consistent (name -> bridge, remoteSSRC -> name)
// index the session consults on every bridged frame.
type loopTable struct {
	mu          sync.RWMutex
	byName      map[string]loopBridge
	byRemoteSSRC map[uint32]string
}

func newLoopTable() *loopTable {
	return &loopTable{
		byName:       make(map[string]loopBridge),
		byRemoteSSRC: make(map[uint32]string),
	}
}

func (t *loopTable) set(b loopBridge) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.byName[b.name]; ok && t.byRemoteSSRC[old.remoteSSRC] == b.name {
		delete(t.byRemoteSSRC, old.remoteSSRC)
	}
	t.byName[b.name] = b
	t.byRemoteSSRC[b.remoteSSRC] = b.name
}

func (t *loopTable) byLoopName(name string) (loopBridge, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.byName[name]
	return b, ok
}

func (t *loopTable) nameForRemoteSSRC(ssrc uint32) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	name, ok := t.byRemoteSSRC[ssrc]
	return name, ok
}

// rewriteSSRC overwrites an RTP packet's SSRC field (bytes 8-11) in place.
func rewriteSSRC(buf []byte, ssrc uint32) error {
	if len(buf) < 12 {
		return ferrors.New("interconnect.rewriteSSRC", ferrors.CodeProtocolMalformed,
			errShortRTPHeader{})
	}
	binary.BigEndian.PutUint32(buf[8:12], ssrc)
	return nil
}

// forcePayloadType rewrites buf's payload-type byte's low 7 bits while
// preserving the marker bit (§4.4.4's outbound rule — the same trick as
// pkg/mixer's gain encoding, applied here to mark bridge-internal type
// instead of gain).
func forcePayloadType(buf []byte, pt byte) error {
	if len(buf) < 2 {
		return ferrors.New("interconnect.forcePayloadType", ferrors.CodeProtocolMalformed,
			errShortRTPHeader{})
	}
	buf[1] = (buf[1] & 0x80) | (pt & 0x7f)
	return nil
}

type errShortRTPHeader struct{}

func (errShortRTPHeader) Error() string { return "rtp packet shorter than fixed header" }
