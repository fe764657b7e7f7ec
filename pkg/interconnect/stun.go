package interconnect

import (
	"log/slog"
	"net"
	"time"

	"github.com/pion/stun"

	"github.com/mcfabric/mcfabric/pkg/metrics"
)

// handleSTUNBindingRequest answers a STUN binding request on the media
// socket with a success response carrying the source's XOR-MAPPED-ADDRESS,
// the only STUN processing the Interconnect Session performs (§4.4.5).
func handleSTUNBindingRequest(socket *net.UDPConn, from *net.UDPAddr, buf []byte, log *slog.Logger) {
	msg := &stun.Message{Raw: append([]byte{}, buf...)}
	if err := msg.Decode(); err != nil {
		log.Debug("malformed stun message, dropping", "err", err)
		return
	}
	if msg.Type != stun.BindingRequest {
		return
	}

	resp, err := stun.Build(
		stun.NewTransactionIDSetter(msg.TransactionID),
		stun.BindingSuccess,
		&stun.XORMappedAddress{IP: from.IP, Port: from.Port},
		stun.Fingerprint,
	)
	if err != nil {
		log.Debug("failed to build stun response", "err", err)
		return
	}
	if _, err := socket.WriteToUDP(resp.Raw, from); err != nil {
		log.Debug("failed to send stun response", "err", err)
	}
}

// stunKeepalive periodically sends a STUN binding request to peer as a
// connectivity keepalive (default 300s, §4.4.5), stopping when done is
// closed.
func stunKeepalive(done <-chan struct{}, socket *net.UDPConn, peer *net.UDPAddr, interval time.Duration, m *metrics.Metrics, log *slog.Logger) {
	if interval <= 0 {
		interval = 300 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			req, err := stun.Build(stun.TransactionID, stun.BindingRequest, stun.Fingerprint)
			if err != nil {
				log.Debug("failed to build stun keepalive", "err", err)
				continue
			}
			if _, err := socket.WriteToUDP(req.Raw, peer); err != nil {
				log.Debug("stun keepalive send failed", "err", err)
				continue
			}
			if m != nil {
				m.StunRoundTrips.Inc()
			}
		}
	}
}
