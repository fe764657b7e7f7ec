// Package loop implements the Multicast Loop Endpoint (C1): a single
// IP-multicast group subscription with echo suppression, plus a decoupled
// send socket.
package loop

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/net/ipv4"

	"github.com/mcfabric/mcfabric/pkg/ferrors"
	"github.com/mcfabric/mcfabric/pkg/rtpdispatch"
)

// Frame is one demultiplexed datagram delivered to the Loop's owner, either
// RTP (to be mixed) or RTCP (carried up so the Mixer can learn the peer's
// SSRC for outbound-echo cancellation, §4.2.1).
type Frame struct {
	LoopName string
	Kind     rtpdispatch.Kind
	Payload  []byte
	Source   net.Addr
}

// Loop is the C1 contract: join one multicast group, receive, send,
// identify itself. Concrete implementations supply the behavior — the
// interface replaces the original's function-table-based dispatch (§9).
type Loop interface {
	Name() string
	LocalSSRC() uint32
	Send(buf []byte) (int, error)
	Frames() <-chan Frame
	Close() error
}

// multicastLoop is the concrete Loop implementation.
type multicastLoop struct {
	name      string
	localSSRC uint32
	group     *net.UDPAddr

	recvConn *ipv4.PacketConn
	rawRecv  *net.UDPConn
	sendConn *net.UDPConn

	frames chan Frame
	log    *slog.Logger

	closeOnce sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// OnClose is invoked once the receive loop exits for any reason (socket
// error or explicit Close), mirroring the original's "close callback"
// (§4.1 Failure semantics) — closing one Loop never propagates to siblings.
type OnClose func(name string, err error)

// Create joins a single IPv4 multicast group and opens a decoupled send
// socket, per §4.1. The receive side is an ipv4.PacketConn, so an IPv6
// group address cannot be joined. Returns *ferrors.Error{Code:
// CodeConfigInvalid} for an unparsable group address or an SSRC draw
// failure, and CodeSocketJoinFailed when a socket cannot be opened or the
// group cannot be joined.
func Create(ctx context.Context, name, group string, port int, onClose OnClose) (Loop, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(group), Port: port}
	if addr.IP == nil {
		return nil, ferrors.New("loop.Create", ferrors.CodeConfigInvalid,
			fmt.Errorf("invalid multicast group address %q", group))
	}

	rawRecv, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, ferrors.New("loop.Create", ferrors.CodeSocketJoinFailed, err)
	}
	pconn := ipv4.NewPacketConn(rawRecv)

	iface, _ := defaultMulticastInterface()
	if err := pconn.JoinGroup(iface, addr); err != nil {
		rawRecv.Close()
		return nil, ferrors.New("loop.Create", ferrors.CodeSocketJoinFailed, err)
	}

	// Separate, unconnected socket used only for sending, so the receive
	// socket stays a pure listener (§4.1).
	sendConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		pconn.LeaveGroup(iface, addr)
		rawRecv.Close()
		return nil, ferrors.New("loop.Create", ferrors.CodeSocketJoinFailed, err)
	}

	ssrc, err := randomSSRC()
	if err != nil {
		sendConn.Close()
		pconn.LeaveGroup(iface, addr)
		rawRecv.Close()
		return nil, ferrors.New("loop.Create", ferrors.CodeConfigInvalid, err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	l := &multicastLoop{
		name:      name,
		localSSRC: ssrc,
		group:     addr,
		recvConn:  pconn,
		rawRecv:   rawRecv,
		sendConn:  sendConn,
		frames:    make(chan Frame, 256),
		log:       slog.With("component", "loop", "loop", name),
		cancel:    cancel,
	}

	l.wg.Add(1)
	go l.receiveLoop(loopCtx, onClose)

	return l, nil
}

func (l *multicastLoop) Name() string      { return l.name }
func (l *multicastLoop) LocalSSRC() uint32 { return l.localSSRC }

// Send is the unicast-equivalent sendto to (group, port); best effort.
func (l *multicastLoop) Send(buf []byte) (int, error) {
	n, err := l.sendConn.WriteToUDP(buf, l.group)
	if err != nil {
		l.log.Debug("loop send failed", "err", err)
		return 0, ferrors.New("loop.Send", ferrors.CodeSocketSendFailed, err)
	}
	return n, nil
}

func (l *multicastLoop) Frames() <-chan Frame { return l.frames }

func (l *multicastLoop) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.cancel()
		err = l.rawRecv.Close()
		l.sendConn.Close()
		l.wg.Wait()
	})
	return err
}

func (l *multicastLoop) receiveLoop(ctx context.Context, onClose OnClose) {
	defer l.wg.Done()
	defer close(l.frames)

	buf := make([]byte, 1500)
	var closeErr error
	for {
		n, src, err := l.rawRecv.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() == nil {
				closeErr = err
			}
			break
		}
		kind := rtpdispatch.Classify(buf[:n])
		switch kind {
		case rtpdispatch.KindRTP:
			ssrc, ok := rtpdispatch.ExtractSSRC(buf[:n])
			if !ok {
				continue
			}
			if ssrc == l.localSSRC {
				// Echo suppression (§4.1, P4): never enqueue our own transmissions.
				continue
			}
		case rtpdispatch.KindRTCP:
			// Delivered up unfiltered: the Mixer learns the peer's SSRC from
			// RTCP for its own outbound-echo cancellation (§4.2.1), a
			// separate concern from this loop's local-SSRC suppression above.
		default:
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])

		select {
		case l.frames <- Frame{LoopName: l.name, Kind: kind, Payload: payload, Source: src}:
		case <-ctx.Done():
			return
		}
	}

	if onClose != nil {
		onClose(l.name, closeErr)
	}
}

func randomSSRC() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func defaultMulticastInterface() (*net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagMulticast != 0 && ifi.Flags&net.FlagUp != 0 {
			iface := ifi
			return &iface, nil
		}
	}
	return nil, nil
}
