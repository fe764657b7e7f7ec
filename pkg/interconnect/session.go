// Package interconnect implements the Interconnect Session (C4): the
// DTLS-SRTP association bridging one local fabric to one remote fabric,
// with per-loop SSRC remapping and STUN keepalive on the shared media
// socket (§4.4).
package interconnect

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/pion/dtls/v2"
	"github.com/pion/rtp"
	"github.com/pion/srtp/v2"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mcfabric/mcfabric/internal/config"
	"github.com/mcfabric/mcfabric/pkg/ferrors"
	"github.com/mcfabric/mcfabric/pkg/metrics"
	"github.com/mcfabric/mcfabric/pkg/rtpdispatch"
)

// LoopSink is the subset of loop.Loop a Session needs to deliver a
// bridged-inbound frame onto the matching local multicast loop. Any
// loop.Loop value satisfies this implicitly.
type LoopSink interface {
	Send(buf []byte) (int, error)
}

// Session is one Interconnect Session: a DTLS handshake, the derived SRTP
// encrypt/decrypt contexts, and the loop SSRC remap table.
type Session struct {
	mu     sync.RWMutex
	cfg    config.InterconnectConfig
	active bool

	fsm     *fsm.FSM
	metrics *metrics.Metrics
	log     *slog.Logger

	cert tls.Certificate

	socket   *net.UDPConn
	peerAddr *net.UDPAddr
	demux    *demuxConn
	dtlsConn *dtls.Conn

	encryptCtx *srtp.Context
	decryptCtx *srtp.Context

	loops     *loopTable
	loopSinks map[string]LoopSink

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSession constructs an Idle Session. active selects the DTLS key role
// (§4.4.3): true for the client that sent connect_media, false for the
// server that received it.
func NewSession(cfg config.InterconnectConfig, active bool, m *metrics.Metrics) (*Session, error) {
	cert, err := loadOrGenerateCertificate(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}
	return &Session{
		cfg:       cfg,
		active:    active,
		fsm:       newSessionFSM(),
		metrics:   m,
		log:       slog.With("component", "interconnect", "active", active),
		cert:      cert,
		loops:     newLoopTable(),
		loopSinks: make(map[string]LoopSink),
	}, nil
}

// Fingerprint returns this session's own certificate fingerprint, to be
// announced in connect_media (§4.4.1).
func (s *Session) Fingerprint() string {
	if len(s.cert.Certificate) == 0 {
		return ""
	}
	return Fingerprint(s.cert.Certificate[0])
}

// State reports the DTLS lifecycle state (§4.4.2).
func (s *Session) State() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fsm.Current()
}

// MediaAddr returns the local media socket's address, valid once Dial or
// Listen has been called.
func (s *Session) MediaAddr() *net.UDPAddr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.socket == nil {
		return nil
	}
	return s.socket.LocalAddr().(*net.UDPAddr)
}

// OpenMediaSocket binds this session's media socket without starting a
// handshake, so the active peer can learn and advertise its own bound port
// in connect_media before it knows the remote endpoint (§4.4.1). Calling it
// is optional: Dial binds one itself if the caller skipped this step.
func (s *Session) OpenMediaSocket() (*net.UDPAddr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.socket != nil {
		return s.socket.LocalAddr().(*net.UDPAddr), nil
	}
	socket, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		return nil, ferrors.New("interconnect.OpenMediaSocket", ferrors.CodeSocketJoinFailed, err)
	}
	s.socket = socket
	return socket.LocalAddr().(*net.UDPAddr), nil
}

// Dial opens the media socket and performs the DTLS handshake as the
// active peer against the remote media endpoint advertised in the
// connect_media response (§4.4.1, §4.4.2).
func (s *Session) Dial(ctx context.Context, remoteHost string, remotePort int, peerFingerprint string) error {
	peerAddr := &net.UDPAddr{IP: net.ParseIP(remoteHost), Port: remotePort}
	if peerAddr.IP == nil {
		return ferrors.New("interconnect.Dial", ferrors.CodeConfigInvalid, fmt.Errorf("invalid remote host %q", remoteHost))
	}

	if _, err := s.OpenMediaSocket(); err != nil {
		return err
	}

	s.mu.Lock()
	socket := s.socket
	s.peerAddr = peerAddr
	s.demux = newDemuxConn(socket, peerAddr)
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go s.readLoop(runCtx)

	if err := fireEvent(s.fsm, "start_handshake"); err != nil {
		return ferrors.New("interconnect.Dial", ferrors.CodeProtocolUnexpectedState, err)
	}

	dtlsConn, err := dtls.ClientWithContext(runCtx, s.demux, s.dtlsConfig())
	if err != nil {
		fireEvent(s.fsm, "fatal_error")
		s.metrics.HandshakeOutcomes.WithLabelValues("failed").Inc()
		return ferrors.New("interconnect.Dial", ferrors.CodeCryptoHandshakeFailed, err)
	}

	return s.completeHandshake(dtlsConn, peerFingerprint)
}

// Listen opens the media socket and performs the DTLS handshake as the
// passive peer, waiting for the first ClientHello from clientAddr. It
// returns once the socket is open so the caller can answer connect_media
// immediately with the local media endpoint and fingerprint; the handshake
// itself completes asynchronously and State reports StateReady once done.
func (s *Session) Listen(ctx context.Context, clientAddr *net.UDPAddr, peerFingerprint string) error {
	socket, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		return ferrors.New("interconnect.Listen", ferrors.CodeSocketJoinFailed, err)
	}

	s.mu.Lock()
	s.socket = socket
	s.peerAddr = clientAddr
	s.demux = newDemuxConn(socket, clientAddr)
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go s.readLoop(runCtx)

	if err := fireEvent(s.fsm, "start_handshake"); err != nil {
		return ferrors.New("interconnect.Listen", ferrors.CodeProtocolUnexpectedState, err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		dtlsConn, err := dtls.ServerWithContext(runCtx, s.demux, s.dtlsConfig())
		if err != nil {
			fireEvent(s.fsm, "fatal_error")
			s.metrics.HandshakeOutcomes.WithLabelValues("failed").Inc()
			s.log.Warn("passive dtls handshake failed", "err", err)
			return
		}
		if err := s.completeHandshake(dtlsConn, peerFingerprint); err != nil {
			s.log.Warn("passive handshake completion failed", "err", err)
		}
	}()
	return nil
}

func (s *Session) dtlsConfig() *dtls.Config {
	retry := s.cfg.ReconnectInterval
	if retry <= 0 {
		retry = 100 * time.Millisecond
	}
	return &dtls.Config{
		Certificates:           []tls.Certificate{s.cert},
		InsecureSkipVerify:     true, // peer identity is checked via fingerprint, not a CA chain (§4.4.2)
		SRTPProtectionProfiles: offeredSRTPProfiles,
		ExtendedMasterSecret:   dtls.RequireExtendedMasterSecret,
		FlightInterval:         retry,
		ConnectContextMaker: func() (context.Context, func()) {
			return context.WithTimeout(context.Background(), 30*time.Second)
		},
	}
}

// completeHandshake verifies the peer fingerprint, derives SRTP keys and
// builds the encrypt/decrypt contexts, then transitions to Ready (§4.4.2).
func (s *Session) completeHandshake(conn *dtls.Conn, peerFingerprint string) error {
	state := conn.ConnectionState()

	if len(state.PeerCertificates) == 0 {
		fireEvent(s.fsm, "fatal_error")
		s.metrics.HandshakeOutcomes.WithLabelValues("failed").Inc()
		return ferrors.New("interconnect.completeHandshake", ferrors.CodeCryptoFingerprintMismatch,
			fmt.Errorf("peer presented no certificate"))
	}
	if !VerifyFingerprint(state.PeerCertificates[0], peerFingerprint) {
		conn.Close()
		fireEvent(s.fsm, "fatal_error")
		s.metrics.HandshakeOutcomes.WithLabelValues("failed").Inc()
		return ferrors.New("interconnect.completeHandshake", ferrors.CodeCryptoFingerprintMismatch,
			fmt.Errorf("peer certificate fingerprint mismatch"))
	}

	srtpProfile, ok := dtlsToSRTPProfile[state.SRTPProtectionProfile]
	if !ok {
		fireEvent(s.fsm, "fatal_error")
		s.metrics.HandshakeOutcomes.WithLabelValues("failed").Inc()
		return ferrors.New("interconnect.completeHandshake", ferrors.CodeCryptoKeyDerivationFailed,
			fmt.Errorf("unsupported negotiated srtp profile %v", state.SRTPProtectionProfile))
	}

	material, err := deriveKeyMaterial(&state, srtpProfile)
	if err != nil {
		fireEvent(s.fsm, "fatal_error")
		s.metrics.HandshakeOutcomes.WithLabelValues("failed").Inc()
		return err
	}

	encKey, encSalt, decKey, decSalt := material.localKeys(s.active)
	encryptCtx, err := srtp.CreateContext(encKey, encSalt, srtpProfile)
	if err != nil {
		fireEvent(s.fsm, "fatal_error")
		return ferrors.New("interconnect.completeHandshake", ferrors.CodeCryptoKeyDerivationFailed, err)
	}
	decryptCtx, err := srtp.CreateContext(decKey, decSalt, srtpProfile)
	if err != nil {
		fireEvent(s.fsm, "fatal_error")
		return ferrors.New("interconnect.completeHandshake", ferrors.CodeCryptoKeyDerivationFailed, err)
	}

	s.mu.Lock()
	s.dtlsConn = conn
	s.encryptCtx = encryptCtx
	s.decryptCtx = decryptCtx
	s.mu.Unlock()

	if err := fireEvent(s.fsm, "handshake_done"); err != nil {
		return ferrors.New("interconnect.completeHandshake", ferrors.CodeProtocolUnexpectedState, err)
	}
	s.metrics.HandshakeOutcomes.WithLabelValues("ready").Inc()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		stunKeepalive(s.doneChan(), s.socket, s.peerAddr, s.cfg.StunKeepalive, s.metrics, s.log)
	}()

	return nil
}

func (s *Session) doneChan() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		<-s.demux.closed
		close(ch)
	}()
	return ch
}

// readLoop is the media socket's single reader, demultiplexing every
// datagram by RFC 7983 range (§4.2.1, §4.4.5).
func (s *Session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	buf := make([]byte, 1500)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.socket.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, addr, err := s.socket.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}

		datagram := buf[:n]
		kind := rtpdispatch.Classify(datagram)

		// The passive side of connect_media is frequently told a
		// NAT-unaware placeholder address (§4.4.1); learn the real one
		// from whatever the peer actually sends us, before ever writing
		// a handshake response or bridged RTP back (§8 P7).
		if !s.active && (kind == rtpdispatch.KindDTLS || kind == rtpdispatch.KindRTP || kind == rtpdispatch.KindRTCP) {
			s.learnPeerAddr(addr)
		}

		switch kind {
		case rtpdispatch.KindSTUN:
			handleSTUNBindingRequest(s.socket, addr, datagram, s.log)
		case rtpdispatch.KindDTLS:
			if s.demux != nil {
				s.demux.deliver(datagram)
			}
		case rtpdispatch.KindRTP, rtpdispatch.KindRTCP:
			if s.State() == StateReady {
				s.bridgeInbound(datagram)
			}
		}
	}
}

// learnPeerAddr rebinds this session's notion of the peer's media address
// to an observed UDP source, correcting the placeholder host:port a client
// may have advertised in connect_media before it knew its own reflexive
// address (§4.4.1, §8 P7).
func (s *Session) learnPeerAddr(addr *net.UDPAddr) {
	s.mu.Lock()
	changed := s.peerAddr == nil || !s.peerAddr.IP.Equal(addr.IP) || s.peerAddr.Port != addr.Port
	if changed {
		s.peerAddr = addr
	}
	demux := s.demux
	s.mu.Unlock()

	if changed && demux != nil {
		demux.rebind(addr)
	}
}

// AttachLoop registers one loop's SSRC bridge, established by connect_loops
// (§4.4.1, §4.4.3), and the sink used to deliver bridged-inbound frames.
func (s *Session) AttachLoop(name string, localSSRC, remoteSSRC uint32, sink LoopSink) {
	s.loops.set(loopBridge{name: name, localSSRC: localSSRC, remoteSSRC: remoteSSRC})
	s.mu.Lock()
	s.loopSinks[name] = sink
	s.mu.Unlock()
}

// bridgeInbound implements §4.4.4's external->internal path.
func (s *Session) bridgeInbound(datagram []byte) {
	plain := datagram
	if s.cfg.Encrypted {
		var header rtp.Header
		if _, err := header.Unmarshal(datagram); err != nil {
			return
		}
		decrypted, err := s.decryptCtx.DecryptRTP(nil, datagram, &header)
		if err != nil {
			s.log.Debug("srtp decrypt failed, dropping packet", "err", err)
			return
		}
		plain = decrypted
	}

	ssrc, ok := rtpdispatch.ExtractSSRC(plain)
	if !ok {
		return
	}
	name, ok := s.loops.nameForRemoteSSRC(ssrc)
	if !ok {
		return
	}
	bridge, ok := s.loops.byLoopName(name)
	if !ok {
		return
	}
	if err := rewriteSSRC(plain, bridge.localSSRC); err != nil {
		return
	}

	s.mu.RLock()
	sink := s.loopSinks[name]
	s.mu.RUnlock()
	if sink == nil {
		return
	}
	sink.Send(plain)
}

// BridgeOutbound implements §4.4.4's internal->external path: called by the
// owner of a joined Loop whenever it receives a multicast frame.
func (s *Session) BridgeOutbound(loopName string, payload []byte) error {
	if s.State() != StateReady {
		return nil
	}
	bridge, ok := s.loops.byLoopName(loopName)
	if !ok {
		return nil
	}

	buf := make([]byte, len(payload))
	copy(buf, payload)
	if err := rewriteSSRC(buf, bridge.remoteSSRC); err != nil {
		return err
	}
	if err := forcePayloadType(buf, bridgePayloadType); err != nil {
		return err
	}

	out := buf
	if s.cfg.Encrypted {
		var header rtp.Header
		n, err := header.Unmarshal(buf)
		if err != nil {
			return ferrors.New("interconnect.BridgeOutbound", ferrors.CodeProtocolMalformed, err)
		}
		encrypted, err := s.encryptCtx.EncryptRTP(nil, &header, buf[n:])
		if err != nil {
			return ferrors.New("interconnect.BridgeOutbound", ferrors.CodeCryptoHandshakeFailed, err)
		}
		out = encrypted
	}

	s.mu.RLock()
	socket, peer := s.socket, s.peerAddr
	s.mu.RUnlock()
	if socket == nil || peer == nil {
		return nil
	}
	_, err := socket.WriteToUDP(out, peer)
	return err
}

// Close tears down the Interconnect Session: any DTLS failure or explicit
// shutdown discards the SRTP session and media socket, but never the
// signaling socket (that is the caller's concern, §4.4.6).
func (s *Session) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.demux != nil {
		s.demux.Close()
	}
	s.mu.Lock()
	conn := s.dtlsConn
	socket := s.socket
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if socket != nil {
		socket.Close()
	}
	fireEvent(s.fsm, "fatal_error")
	s.wg.Wait()
	return nil
}
