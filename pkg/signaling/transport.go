package signaling

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcfabric/mcfabric/pkg/ferrors"
)

// Conn is the reliable duplex signaling socket (§5) used by both the
// Control Plane (§4.3.5) and the Interconnect Session's signaling dance
// (§4.4.1): one JSON Event per websocket text message, either direction.
type Conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex
}

// NewConn wraps an already-established websocket connection.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// upgrader is the server-side websocket upgrader used by Upgrade; it
// accepts requests from any Origin.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Dial connects to a signaling endpoint at the given ws(s):// URL.
func Dial(ctx context.Context, url string) (*Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, ferrors.New("signaling.Dial", ferrors.CodeSocketJoinFailed, err)
	}
	return NewConn(ws), nil
}

// Upgrade upgrades an inbound HTTP request to a signaling socket — the
// server-side counterpart of Dial, used by the Control Plane listener and
// the Interconnect server role.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, ferrors.New("signaling.Upgrade", ferrors.CodeSocketJoinFailed, err)
	}
	return NewConn(ws), nil
}

// Send writes one Event as a JSON text message. Safe for concurrent callers.
func (c *Conn) Send(ev Event) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteJSON(ev); err != nil {
		return ferrors.New("signaling.Send", ferrors.CodeSocketSendFailed, err)
	}
	return nil
}

// Recv blocks for the next Event. Callers typically loop this in a
// dedicated read goroutine per §5's concurrency model.
func (c *Conn) Recv() (Event, error) {
	var ev Event
	if err := c.ws.ReadJSON(&ev); err != nil {
		return Event{}, ferrors.New("signaling.Recv", ferrors.CodeSocketClosed, err)
	}
	return ev, nil
}

// Close tears down the underlying websocket connection.
func (c *Conn) Close() error {
	return c.ws.Close()
}

// RemoteAddr exposes the peer address for registry bookkeeping (§4.3.1's
// "remote address" slot field).
func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}
