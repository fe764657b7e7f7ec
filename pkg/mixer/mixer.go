// Package mixer implements the Session Mixer (C2): per-session RTP jitter
// buffering, decode-mix-encode pipeline, RTP emission, comfort-noise
// keepalive and codec garbage collection (§4.2).
package mixer

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/pion/rtp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mcfabric/mcfabric/pkg/codec"
	"github.com/mcfabric/mcfabric/pkg/ferrors"
	"github.com/mcfabric/mcfabric/pkg/jitter"
	"github.com/mcfabric/mcfabric/pkg/loop"
	"github.com/mcfabric/mcfabric/pkg/metrics"
	"github.com/mcfabric/mcfabric/pkg/pcm"
	"github.com/mcfabric/mcfabric/pkg/rtpdispatch"
)

// joinedLoop tracks one Loop this Mixer has joined, plus its current volume
// (§6.1 `join`/`volume`).
type joinedLoop struct {
	l      loop.Loop
	volume int
	cancel context.CancelFunc
}

// Mixer is the C2 session mixer.
type Mixer struct {
	mu sync.RWMutex

	cfg      Config
	sessionID string
	forward  Forward

	fsm *fsm.FSM

	loops map[string]*joinedLoop

	jb      *jitter.Buffer
	streams map[uint32]*streamEntry

	newDecoder func() (codec.Codec, error)
	encoder    codec.Codec

	outputSeq       uint16
	outputTimestamp uint32
	emittedFrames   uint64

	// cancelSSRC is the peer SSRC last learned from RTCP on a joined loop
	// (§4.2.1): RTP bearing this SSRC is the Mixer's own outbound stream
	// reflected back and is dropped before it reaches the jitter buffer,
	// independent of C1's local-SSRC self-echo suppression in pkg/loop.
	cancelSSRC uint32
	haveCancel bool

	comfortNoiseFrame []int16

	sendConn *net.UDPConn
	sendAddr *net.UDPAddr

	metrics *metrics.Metrics
	log     *slog.Logger

	lastGC time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an unbound Mixer. decoderFactory builds one Codec instance
// per incoming SSRC (lazily, §4.2.4); a nil metrics registerer is replaced
// with a private registry so tests stay hermetic.
func New(cfg Config, decoderFactory func() (codec.Codec, error), m *metrics.Metrics) (*Mixer, error) {
	if decoderFactory == nil {
		decoderFactory = func() (codec.Codec, error) {
			return codec.New(codec.Config{SampleRateHz: cfg.SampleRateHz, Channels: 1})
		}
	}
	enc, err := decoderFactory()
	if err != nil {
		return nil, ferrors.New("mixer.New", ferrors.CodeCodecUnsupported, err)
	}
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}

	frameSamples := cfg.SampleRateHz / 50 // 20ms
	amplitude := pcm.ComfortNoiseAmplitude(cfg.ComfortNoiseDB)

	return &Mixer{
		cfg:               cfg,
		fsm:               newMixerFSM(),
		loops:             make(map[string]*joinedLoop),
		jb:                jitter.New(jitter.Config{BufferSize: cfg.FrameBufferSize}),
		streams:           make(map[uint32]*streamEntry),
		newDecoder:        decoderFactory,
		encoder:           enc,
		comfortNoiseFrame: pcm.ComfortNoiseFrame(frameSamples, amplitude),
		metrics:           m,
		log:               slog.With("component", "mixer"),
		lastGC:            time.Now(),
	}, nil
}

// State returns the current lifecycle state (§4.2.8).
func (m *Mixer) State() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fsm.Current()
}

// Bind transitions Unbound -> Bound, recording the session id and the
// output forward target (§6.1 `acquire`/`forward`).
func (m *Mixer) Bind(sessionID string, fwd Forward) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := fireEvent(m.fsm, "acquire"); err != nil {
		return ferrors.New("mixer.Bind", ferrors.CodeProtocolUnexpectedState, err)
	}
	m.sessionID = sessionID
	return m.setForwardLocked(fwd)
}

// SetForward updates the output target without changing lifecycle state
// (the `forward` event, §6.1), opening a fresh send socket per change,
// matching ov_mc_mixer_core_set_forward.
func (m *Mixer) SetForward(fwd Forward) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setForwardLocked(fwd)
}

func (m *Mixer) setForwardLocked(fwd Forward) error {
	addr := &net.UDPAddr{IP: net.ParseIP(fwd.Host), Port: fwd.Port}
	if addr.IP == nil {
		return ferrors.New("mixer.SetForward", ferrors.CodeConfigInvalid,
			fmt.Errorf("invalid forward host %q", fwd.Host))
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		return ferrors.New("mixer.SetForward", ferrors.CodeSocketJoinFailed, err)
	}
	if m.sendConn != nil {
		m.sendConn.Close()
	}
	m.sendConn = conn
	m.sendAddr = addr
	m.forward = fwd
	return nil
}

// Join adds a Loop at the given volume (clamped to [0,100], §8) and starts
// feeding its frames into the jitter buffer with the volume encoded into
// the payload-type byte (§4.2.2).
func (m *Mixer) Join(l loop.Loop, volume int) error {
	m.mu.Lock()
	if _, exists := m.loops[l.Name()]; exists {
		m.mu.Unlock()
		return nil
	}
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	jl := &joinedLoop{l: l, volume: volume, cancel: cancel}
	m.loops[l.Name()] = jl
	m.mu.Unlock()

	if err := fireEvent(m.fsm, "join"); err != nil {
		return ferrors.New("mixer.Join", ferrors.CodeProtocolUnexpectedState, err)
	}

	m.wg.Add(1)
	go m.pumpLoop(ctx, jl)
	return nil
}

// Leave removes a Loop by name (§6.1 `leave`).
func (m *Mixer) Leave(name string) error {
	m.mu.Lock()
	jl, ok := m.loops[name]
	if !ok {
		m.mu.Unlock()
		return ferrors.New("mixer.Leave", ferrors.CodeProtocolMalformed, fmt.Errorf("unknown loop %q", name))
	}
	delete(m.loops, name)
	remaining := len(m.loops)
	m.mu.Unlock()

	jl.cancel()

	event := "leave"
	if remaining == 0 {
		event = "leave_to_empty"
	}
	return fireEvent(m.fsm, event)
}

// SetVolume updates a joined loop's volume (§6.1 `volume`, clamped per §8).
func (m *Mixer) SetVolume(name string, volume int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	jl, ok := m.loops[name]
	if !ok {
		return ferrors.New("mixer.SetVolume", ferrors.CodeProtocolMalformed, fmt.Errorf("unknown loop %q", name))
	}
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	jl.volume = volume
	return nil
}

// Release returns the Mixer to Unbound, detaching every joined loop and
// stopping its frame pump (§6.1 `release`). The Loops themselves are not
// closed; their owner closes them.
func (m *Mixer) Release() error {
	m.mu.Lock()
	loops := m.loops
	m.loops = make(map[string]*joinedLoop)
	m.mu.Unlock()

	for _, jl := range loops {
		jl.cancel()
	}
	return fireEvent(m.fsm, "release")
}

// pumpLoop reads frames from one joined Loop and inserts them into the
// jitter buffer with the loop's current volume encoded into the PT byte.
func (m *Mixer) pumpLoop(ctx context.Context, jl *joinedLoop) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-jl.l.Frames():
			if !ok {
				return
			}
			if f.Kind == rtpdispatch.KindRTCP {
				m.learnCancelSSRC(f.Payload)
				continue
			}
			m.ingest(jl, f.Payload)
		}
	}
}

// learnCancelSSRC records the SSRC an RTCP packet on a joined loop reports,
// so a later RTP packet carrying that same SSRC is recognized as the
// Mixer's own outbound stream looping back and is discarded (§4.2.1).
func (m *Mixer) learnCancelSSRC(payload []byte) {
	ssrc, ok := rtpdispatch.LearnPeerSSRC(payload)
	if !ok {
		return
	}
	m.mu.Lock()
	m.cancelSSRC = ssrc
	m.haveCancel = true
	m.mu.Unlock()
}

func (m *Mixer) ingest(jl *joinedLoop, payload []byte) {
	buf := make([]byte, len(payload))
	copy(buf, payload)

	ssrc, ok := rtpdispatch.ExtractSSRC(buf)
	if !ok {
		return
	}

	m.mu.RLock()
	vol := jl.volume
	cancel, haveCancel := m.cancelSSRC, m.haveCancel
	m.mu.RUnlock()

	if haveCancel && ssrc == cancel {
		return
	}

	encodeGainIntoPT(buf, vol)

	seq := binary.BigEndian.Uint16(buf[2:4])
	if _, evicted := m.jb.Put(ssrc, jitter.Frame{Payload: buf, SeqNum: seq}); evicted {
		m.metrics.JitterBufferDrops.Inc()
	}
}

// Start launches the mixer's 20ms tick goroutine (§4.2).
func (m *Mixer) Start(ctx context.Context) {
	tickCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)
	go m.tickLoop(tickCtx)
}

// Stop halts the tick goroutine and every loop pump, and waits for them to
// exit.
func (m *Mixer) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Lock()
	for _, jl := range m.loops {
		jl.cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
	if m.sendConn != nil {
		m.sendConn.Close()
	}
}

func (m *Mixer) tickLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			m.runGCIfDue(start)
			m.tick()
			m.metrics.MixTickDuration.Observe(time.Since(start).Seconds())
		}
	}
}

// tick implements §4.2.3-§4.2.6: drain, decode+gain, mix, encode+emit.
func (m *Mixer) tick() {
	frames := m.jb.Drain()

	var widened [][]int32
	for ssrc, f := range frames {
		entry := m.streamFor(ssrc)
		pcmSamples, err := entry.decoder.Decode(bufferedFrame{raw: f.Payload}.payload())
		if err != nil {
			m.log.Debug("decode failed, dropping frame", "ssrc", ssrc, "err", err)
			continue
		}
		gain := bufferedFrame{raw: f.Payload}.effectiveGainPercent()
		widened = append(widened, m.applyGain(entry, pcmSamples, gain))
	}

	mixed := pcm.Mix(widened)

	var outSamples []int16
	if mixed == nil {
		if !m.cfg.RTPKeepalive {
			return
		}
		outSamples = m.comfortNoiseFrame
	} else {
		outSamples = pcm.NarrowClip(mixed)
	}

	m.emit(outSamples)
}

func (m *Mixer) applyGain(entry *streamEntry, samples []int16, gainPercent int) []int32 {
	entry.touch()

	if !m.cfg.VAD.Enabled {
		return pcm.WidenGain(samples, gainPercent)
	}

	res := pcm.Detect(samples, m.cfg.SampleRateHz, m.cfg.VAD)
	wasVoiced := entry.voiceDetected
	entry.voiceDetected = res.VoiceDetected

	if !res.VoiceDetected {
		if wasVoiced {
			// Falling edge: fade out over this one frame before silence or
			// drop takes over, mirroring the rising-edge fade-in below.
			return pcm.Fade(pcm.NormalizeGain(samples, gainPercent), false)
		}
		if m.cfg.VAD.DropWhenNoVoice {
			return nil
		}
		return pcm.WidenGain(samples, gainPercent)
	}

	widened := pcm.NormalizeGain(samples, gainPercent)
	switch {
	case !wasVoiced:
		return pcm.Fade(widened, true)
	default:
		return widened
	}
}

func (m *Mixer) streamFor(ssrc uint32) *streamEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.streams[ssrc]; ok {
		return e
	}
	dec, err := m.newDecoder()
	if err != nil {
		dec, _ = codec.New(codec.Config{SampleRateHz: m.cfg.SampleRateHz, Channels: 1})
	}
	e := newStreamEntry(ssrc, dec)
	m.streams[ssrc] = e
	return e
}

// emit implements §4.2.6: encode, wrap RTP, marker-bit policy, send.
func (m *Mixer) emit(samples []int16) {
	encoded, err := m.encoder.Encode(samples)
	if err != nil {
		m.log.Debug("encode failed, dropping tick output", "err", err)
		return
	}

	m.mu.Lock()
	m.emittedFrames++
	marker := m.emittedFrames == 1 || m.emittedFrames%100 == 0
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         marker,
			PayloadType:    m.forward.PayloadType,
			SequenceNumber: m.outputSeq,
			Timestamp:      m.outputTimestamp,
			SSRC:           m.forward.SSRC,
		},
		Payload: encoded,
	}
	m.outputSeq++
	m.outputTimestamp += uint32(len(samples))
	conn, addr := m.sendConn, m.sendAddr
	m.mu.Unlock()

	if conn == nil || addr == nil {
		return
	}
	raw, err := pkt.Marshal()
	if err != nil {
		m.log.Debug("rtp marshal failed", "err", err)
		return
	}
	if _, err := conn.WriteToUDP(raw, addr); err != nil {
		m.log.Debug("emit send failed", "err", err)
	}
}
