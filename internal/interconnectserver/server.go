// Package interconnectserver implements the signaling dance and loop
// bridging that sits above one or more pkg/interconnect.Session values
// (§4.4.1, §4.4.4): authenticating remote fabrics, running the
// connect_media/connect_loops exchange, and fanning local loop traffic out
// to (and back in from) every bridged peer.
package interconnectserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/mcfabric/mcfabric/internal/config"
	"github.com/mcfabric/mcfabric/pkg/ferrors"
	"github.com/mcfabric/mcfabric/pkg/interconnect"
	"github.com/mcfabric/mcfabric/pkg/loop"
	"github.com/mcfabric/mcfabric/pkg/metrics"
	"github.com/mcfabric/mcfabric/pkg/signaling"
)

// peer is one remote fabric's live interconnect association.
type peer struct {
	name    string
	session *interconnect.Session
	loops   []string // loop names this peer is bridging
}

// Server owns every Interconnect Session this fabric instance has with
// remote fabrics, plus the local Loop instances it bridges traffic through.
type Server struct {
	cfg   config.InterconnectConfig
	peers map[string]string // name -> password, from config.PeerConfig
	loops map[string]config.LoopConfig

	metrics *metrics.Metrics
	log     *slog.Logger

	ctx context.Context

	mu      sync.Mutex
	hubs    map[string]*loopHub // loop name -> fan-out hub, created lazily
	sockets map[string]*peer    // remote fabric name -> association
}

// New constructs a Server. ctx bounds every loop this Server creates; it
// should be cancelled at process shutdown.
func New(ctx context.Context, cfg config.InterconnectConfig, peers []config.PeerConfig, loops []config.LoopConfig, m *metrics.Metrics) *Server {
	peerMap := make(map[string]string, len(peers))
	for _, p := range peers {
		peerMap[p.Name] = p.Password
	}
	loopMap := make(map[string]config.LoopConfig, len(loops))
	for _, l := range loops {
		loopMap[l.Name] = l
	}
	return &Server{
		cfg:     cfg,
		peers:   peerMap,
		loops:   loopMap,
		metrics: m,
		log:     slog.With("component", "interconnectserver"),
		ctx:     ctx,
		hubs:    make(map[string]*loopHub),
		sockets: make(map[string]*peer),
	}
}

// Accept runs the server (passive-DTLS) side of the dance (§4.4.1) against
// an already-upgraded signaling socket until it closes.
func (s *Server) Accept(conn *signaling.Conn) {
	defer conn.Close()

	ev, err := conn.Recv()
	if err != nil {
		return
	}
	if ev.Event != signaling.EventRegister {
		conn.Send(signaling.NewErrorResponse(ev.Event, ev.UUID, ferrors.CodeProtocolUnexpectedState, "expected register"))
		return
	}
	var reg signaling.RegisterInterconnectParam
	if err := signaling.DecodeParameter(ev, &reg); err != nil {
		conn.Send(signaling.NewErrorResponse(ev.Event, ev.UUID, ferrors.CodeProtocolMalformed, "bad register parameter"))
		return
	}
	if want, ok := s.peers[reg.Name]; !ok || want != reg.Password {
		conn.Send(signaling.NewErrorResponse(ev.Event, ev.UUID, ferrors.CodeAuthFailure, "unknown peer or bad password"))
		return
	}
	resp, _ := signaling.NewResponse(ev.Event, ev.UUID, struct{}{})
	conn.Send(resp)

	p := &peer{name: reg.Name}
	s.mu.Lock()
	s.sockets[reg.Name] = p
	s.mu.Unlock()
	defer s.teardown(p)

	for {
		ev, err := conn.Recv()
		if err != nil {
			return
		}
		switch ev.Event {
		case signaling.EventConnectMedia:
			s.handleConnectMedia(conn, ev, p)
		case signaling.EventConnectLoops:
			s.handleConnectLoops(conn, ev, p)
		default:
			conn.Send(signaling.NewErrorResponse(ev.Event, ev.UUID, ferrors.CodeProtocolUnknownEvent, "unexpected event in interconnect dance"))
		}
	}
}

func (s *Server) handleConnectMedia(conn *signaling.Conn, ev signaling.Event, p *peer) {
	var param signaling.ConnectMediaParam
	if err := signaling.DecodeParameter(ev, &param); err != nil {
		conn.Send(signaling.NewErrorResponse(ev.Event, ev.UUID, ferrors.CodeProtocolMalformed, "bad connect_media parameter"))
		return
	}

	session, err := interconnect.NewSession(s.cfg, false, s.metrics)
	if err != nil {
		conn.Send(signaling.NewErrorResponse(ev.Event, ev.UUID, ferrors.CodeCryptoHandshakeFailed, err.Error()))
		return
	}
	clientAddr := &net.UDPAddr{IP: net.ParseIP(param.Host), Port: param.Port}
	if clientAddr.IP == nil {
		conn.Send(signaling.NewErrorResponse(ev.Event, ev.UUID, ferrors.CodeConfigInvalid, "bad client media host"))
		return
	}
	if err := session.Listen(s.ctx, clientAddr, param.Fingerprint); err != nil {
		conn.Send(signaling.NewErrorResponse(ev.Event, ev.UUID, ferrors.CodeSocketJoinFailed, err.Error()))
		return
	}

	s.mu.Lock()
	p.session = session
	s.mu.Unlock()

	mediaAddr := session.MediaAddr()
	reply := signaling.ConnectMediaParam{
		Name:        param.Name,
		Codec:       param.Codec,
		Host:        mediaAddr.IP.String(),
		Port:        mediaAddr.Port,
		Fingerprint: session.Fingerprint(),
	}
	resp, _ := signaling.NewResponse(ev.Event, ev.UUID, reply)
	conn.Send(resp)
}

func (s *Server) handleConnectLoops(conn *signaling.Conn, ev signaling.Event, p *peer) {
	var param signaling.ConnectLoopsParam
	if err := signaling.DecodeParameter(ev, &param); err != nil {
		conn.Send(signaling.NewErrorResponse(ev.Event, ev.UUID, ferrors.CodeProtocolMalformed, "bad connect_loops parameter"))
		return
	}

	s.mu.Lock()
	session := p.session
	s.mu.Unlock()
	if session == nil {
		conn.Send(signaling.NewErrorResponse(ev.Event, ev.UUID, ferrors.CodeProtocolUnexpectedState, "connect_loops before connect_media"))
		return
	}

	var matched []signaling.LoopSSRC
	for _, remote := range param.Loops {
		localLoop, err := s.getOrCreateLoop(remote.Name)
		if err != nil {
			s.log.Warn("cannot bridge unknown loop", "loop", remote.Name, "err", err)
			continue
		}
		session.AttachLoop(remote.Name, localLoop.LocalSSRC(), remote.SSRC, localLoop)
		s.subscribeLoop(remote.Name, p.name, session)
		p.loops = append(p.loops, remote.Name)
		matched = append(matched, signaling.LoopSSRC{Name: remote.Name, SSRC: localLoop.LocalSSRC()})
	}

	resp, _ := signaling.NewResponse(ev.Event, ev.UUID, signaling.ConnectLoopsParam{Loops: matched})
	conn.Send(resp)
}

func (s *Server) getOrCreateLoop(name string) (loop.Loop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if hub, ok := s.hubs[name]; ok {
		return hub.l, nil
	}
	cfg, ok := s.loops[name]
	if !ok {
		return nil, ferrors.New("interconnectserver.getOrCreateLoop", ferrors.CodeConfigInvalid,
			fmt.Errorf("loop %q not configured", name))
	}
	l, err := loop.Create(s.ctx, cfg.Name, cfg.Group, cfg.Port, nil)
	if err != nil {
		return nil, err
	}
	s.hubs[name] = newLoopHub(s.ctx, l)
	return l, nil
}

func (s *Server) subscribeLoop(loopName, peerName string, session *interconnect.Session) {
	s.mu.Lock()
	hub := s.hubs[loopName]
	s.mu.Unlock()
	if hub == nil {
		return
	}
	hub.subscribe(peerName, func(payload []byte) {
		if err := session.BridgeOutbound(loopName, payload); err != nil {
			s.log.Debug("bridge outbound failed", "loop", loopName, "peer", peerName, "err", err)
		}
	})
}

func (s *Server) teardown(p *peer) {
	s.mu.Lock()
	delete(s.sockets, p.name)
	for _, name := range p.loops {
		if hub, ok := s.hubs[name]; ok {
			hub.unsubscribe(p.name)
		}
	}
	session := p.session
	s.mu.Unlock()

	if session != nil {
		session.Close()
	}
}

// DialPeer actively connects to a remote fabric's interconnect listener as
// the client (DTLS-active) side of the dance (§4.4.1), bridging the given
// loop names once connect_loops completes.
func (s *Server) DialPeer(ctx context.Context, signalingURL, name, password string, loopNames []string) error {
	conn, err := signaling.Dial(ctx, signalingURL)
	if err != nil {
		return err
	}

	regReq, _ := signaling.NewRequest(signaling.EventRegister, name, signaling.RegisterInterconnectParam{Name: name, Password: password})
	if err := conn.Send(regReq); err != nil {
		conn.Close()
		return err
	}
	regResp, err := conn.Recv()
	if err != nil {
		conn.Close()
		return err
	}
	if !regResp.Succeeded() {
		conn.Close()
		return ferrors.New("interconnectserver.DialPeer", ferrors.CodeAuthFailure, fmt.Errorf("%s", regResp.Error.Description))
	}

	session, err := interconnect.NewSession(s.cfg, true, s.metrics)
	if err != nil {
		conn.Close()
		return err
	}

	// The active side opens its media socket first so it can advertise a
	// real bound port in connect_media (§4.4.1 step 2); the remote's own
	// routable IP for our side is still learned from the handshake's UDP
	// source address (session.learnPeerAddr), since "0.0.0.0" is never a
	// usable destination and we cannot reliably know our own NAT-mapped IP.
	localAddr, err := session.OpenMediaSocket()
	if err != nil {
		conn.Close()
		return err
	}

	localLoops := make(map[string]loop.Loop, len(loopNames))
	for _, ln := range loopNames {
		l, err := s.getOrCreateLoop(ln)
		if err != nil {
			conn.Close()
			return err
		}
		localLoops[ln] = l
	}

	mediaReq, _ := signaling.NewRequest(signaling.EventConnectMedia, name, signaling.ConnectMediaParam{
		Name:        name,
		Codec:       "opus",
		Host:        "0.0.0.0",
		Port:        localAddr.Port,
		Fingerprint: session.Fingerprint(),
	})
	if err := conn.Send(mediaReq); err != nil {
		conn.Close()
		return err
	}
	mediaResp, err := conn.Recv()
	if err != nil {
		conn.Close()
		return err
	}
	var remoteMedia signaling.ConnectMediaParam
	if err := signaling.DecodeResponse(mediaResp, &remoteMedia); err != nil {
		conn.Close()
		return err
	}

	if err := session.Dial(ctx, remoteMedia.Host, remoteMedia.Port, remoteMedia.Fingerprint); err != nil {
		conn.Close()
		return err
	}

	loopReq := signaling.ConnectLoopsParam{}
	for _, ln := range loopNames {
		loopReq.Loops = append(loopReq.Loops, signaling.LoopSSRC{Name: ln, SSRC: localLoops[ln].LocalSSRC()})
	}
	req, _ := signaling.NewRequest(signaling.EventConnectLoops, name, loopReq)
	if err := conn.Send(req); err != nil {
		conn.Close()
		return err
	}
	loopsResp, err := conn.Recv()
	if err != nil {
		conn.Close()
		return err
	}
	var matched signaling.ConnectLoopsParam
	if err := signaling.DecodeResponse(loopsResp, &matched); err != nil {
		conn.Close()
		return err
	}

	p := &peer{name: name, session: session}
	for _, m := range matched.Loops {
		l, ok := localLoops[m.Name]
		if !ok {
			continue
		}
		session.AttachLoop(m.Name, l.LocalSSRC(), m.SSRC, l)
		s.subscribeLoop(m.Name, name, session)
		p.loops = append(p.loops, m.Name)
	}

	s.mu.Lock()
	s.sockets[name] = p
	s.mu.Unlock()

	go func() {
		defer s.teardown(p)
		for {
			if _, err := conn.Recv(); err != nil {
				return
			}
		}
	}()

	return nil
}
