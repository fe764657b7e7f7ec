package mixer

// bufferedFrame wraps one jitter-buffered RTP payload together with the
// named accessor §4.2.2 calls for: the volume-in-payload-type-byte trick is
// still the on-wire representation (the jitter ring literally stores these
// bytes), but every read goes through effectiveGainPercent instead of
// inline bit-twiddling at each call site (§9 design note).
type bufferedFrame struct {
	raw []byte // full RTP packet, PT byte already overwritten with the gain
}

// effectiveGainPercent extracts the per-source gain smuggled into the RTP
// payload-type byte's low 7 bits (§4.2.2).
func (f bufferedFrame) effectiveGainPercent() int {
	if len(f.raw) < 2 {
		return 0
	}
	return int(f.raw[1] & 0x7f)
}

// payload returns the RTP payload bytes (after the fixed 12-byte header).
func (f bufferedFrame) payload() []byte {
	if len(f.raw) <= 12 {
		return nil
	}
	return f.raw[12:]
}

// encodeGainIntoPT rewrites buf's payload-type byte to carry volumePercent
// in its low 7 bits while preserving the marker bit (§4.2.2). volumePercent
// is clamped to [0,100] per §8's boundary behavior.
func encodeGainIntoPT(buf []byte, volumePercent int) {
	if len(buf) < 2 {
		return
	}
	if volumePercent < 0 {
		volumePercent = 0
	}
	if volumePercent > 100 {
		volumePercent = 100
	}
	buf[1] = (buf[1] & 0x80) | byte(volumePercent)
}
