package interconnect

import (
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/mcfabric/mcfabric/internal/config"
	"github.com/mcfabric/mcfabric/pkg/metrics"
)

func TestOpenMediaSocketBindsOnceAndIsIdempotent(t *testing.T) {
	s, err := NewSession(config.DefaultInterconnectConfig(), true, metrics.New(prometheus.NewRegistry()))
	require.NoError(t, err)

	addr1, err := s.OpenMediaSocket()
	require.NoError(t, err)
	require.NotZero(t, addr1.Port)

	addr2, err := s.OpenMediaSocket()
	require.NoError(t, err)
	require.Equal(t, addr1.Port, addr2.Port, "a second call must reuse the already-bound socket")

	require.NoError(t, s.socket.Close())
}

func TestDemuxConnRebindUpdatesWriteTargetAndRemoteAddr(t *testing.T) {
	socket, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	require.NoError(t, err)
	defer socket.Close()

	placeholder := &net.UDPAddr{IP: net.ParseIP("0.0.0.0"), Port: 0}
	d := newDemuxConn(socket, placeholder)
	require.Equal(t, placeholder, d.RemoteAddr())

	learned := &net.UDPAddr{IP: net.ParseIP("203.0.113.7"), Port: 41000}
	d.rebind(learned)
	require.Equal(t, learned, d.RemoteAddr())
}

func TestSessionLearnPeerAddrRebindsDemuxOnce(t *testing.T) {
	socket, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	require.NoError(t, err)
	defer socket.Close()

	placeholder := &net.UDPAddr{IP: net.ParseIP("0.0.0.0"), Port: 0}
	s := &Session{
		active:   false,
		socket:   socket,
		peerAddr: placeholder,
		demux:    newDemuxConn(socket, placeholder),
	}

	observed := &net.UDPAddr{IP: net.ParseIP("198.51.100.9"), Port: 5004}
	s.learnPeerAddr(observed)

	require.Equal(t, observed, s.peerAddr)
	require.Equal(t, observed, s.demux.RemoteAddr())

	// A second datagram from the same source must not be treated as a
	// further change (idempotent rebind).
	s.learnPeerAddr(observed)
	require.Equal(t, observed, s.peerAddr)
}
