package mixer

import "time"

// runGCIfDue reclaims stale RTP Stream Entries (§4.2.7) once per second,
// at most GCBatchSize per sweep, mirroring ov_mc_mixer_core's fixed-size
// ssids[10] reclamation batch.
func (m *Mixer) runGCIfDue(now time.Time) {
	if now.Sub(m.lastGC) < time.Second {
		return
	}
	m.lastGC = now
	m.collectStale(now)
}

func (m *Mixer) collectStale(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	batch := m.cfg.GCBatchSize
	if batch <= 0 {
		batch = 10
	}

	reclaimed := 0
	for ssrc, entry := range m.streams {
		if reclaimed >= batch {
			break
		}
		if entry.staleSince(now, StaleStreamAge) {
			delete(m.streams, ssrc)
			m.jb.Forget(ssrc)
			reclaimed++
		}
	}
	if reclaimed > 0 {
		m.metrics.CodecGCReclaimed.Add(float64(reclaimed))
	}
}
