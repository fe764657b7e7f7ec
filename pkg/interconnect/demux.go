package interconnect

import (
	"net"
	"sync"
	"time"
)

// demuxConn adapts one shared UDP socket into a net.Conn that only ever
// sees the DTLS-range datagrams (RFC 7983, §4.2.1's dispatch table) for a
// single known peer address. The session's own read loop owns the real
// socket and feeds demuxConn.Read via deliver; STUN and RTP/SRTP datagrams
// never reach it. This lets pion/dtls.Client/dtls.Server treat the
// handshake as an ordinary point-to-point connection while the rest of the
// Interconnect Session keeps reading the same 5-tuple for everything else.
//
// peer starts out as whatever address the signaling dance advertised, which
// for a passive session is frequently a NAT-unaware placeholder (§4.4.1);
// rebind lets the owning Session correct it once a real datagram arrives.
type demuxConn struct {
	socket *net.UDPConn

	mu   sync.RWMutex
	peer *net.UDPAddr

	in     chan []byte
	closed chan struct{}
}

func newDemuxConn(socket *net.UDPConn, peer *net.UDPAddr) *demuxConn {
	return &demuxConn{
		socket: socket,
		peer:   peer,
		in:     make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

// rebind updates the peer address this conn writes to and reports as
// RemoteAddr, e.g. once the session has learned the true source address of
// the peer's datagrams.
func (c *demuxConn) rebind(peer *net.UDPAddr) {
	c.mu.Lock()
	c.peer = peer
	c.mu.Unlock()
}

// deliver hands one DTLS-range datagram to the handshake reader. Called
// from the session's read loop; never blocks past a full buffer (drops
// oldest-analogous behavior is unnecessary here since DTLS retransmits).
func (c *demuxConn) deliver(buf []byte) {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	select {
	case c.in <- cp:
	case <-c.closed:
	default:
	}
}

func (c *demuxConn) Read(b []byte) (int, error) {
	select {
	case buf := <-c.in:
		n := copy(b, buf)
		return n, nil
	case <-c.closed:
		return 0, net.ErrClosed
	}
}

func (c *demuxConn) Write(b []byte) (int, error) {
	c.mu.RLock()
	peer := c.peer
	c.mu.RUnlock()
	return c.socket.WriteToUDP(b, peer)
}

func (c *demuxConn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}

func (c *demuxConn) LocalAddr() net.Addr { return c.socket.LocalAddr() }
func (c *demuxConn) RemoteAddr() net.Addr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.peer
}

func (c *demuxConn) SetDeadline(t time.Time) error      { return nil }
func (c *demuxConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *demuxConn) SetWriteDeadline(t time.Time) error { return nil }
