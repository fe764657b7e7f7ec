package mixer

import "os"

// OutputState reports the mixer's current RTP emission counters (§4.2.9).
type OutputState struct {
	SequenceNumber uint16
	Timestamp      uint32
	PayloadType    uint8
	SSRC           uint32
}

// MixerState is the full point-in-time mixer snapshot returned over the
// Control Plane's `state` event (§4.2.9, §6.3).
type MixerState struct {
	PID        int
	SessionID  string
	State      string
	Forward    Forward
	LoopNames  []string
	Output     OutputState
	StreamCount int
}

// Snapshot builds a MixerState for the `state` wire response.
func (m *Mixer) Snapshot() MixerState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.loops))
	for name := range m.loops {
		names = append(names, name)
	}

	return MixerState{
		PID:       os.Getpid(),
		SessionID: m.sessionID,
		State:     m.fsm.Current(),
		Forward:   m.forward,
		LoopNames: names,
		Output: OutputState{
			SequenceNumber: m.outputSeq,
			Timestamp:      m.outputTimestamp,
			PayloadType:    m.forward.PayloadType,
			SSRC:           m.forward.SSRC,
		},
		StreamCount: len(m.streams),
	}
}
