package interconnectserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mcfabric/mcfabric/internal/config"
	"github.com/mcfabric/mcfabric/pkg/metrics"
	"github.com/mcfabric/mcfabric/pkg/signaling"
	"github.com/prometheus/client_golang/prometheus"
)

func testServer(t *testing.T, peers []config.PeerConfig, loops []config.LoopConfig) (*Server, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	s := New(ctx, config.DefaultInterconnectConfig(), peers, loops, metrics.New(prometheus.NewRegistry()))
	httpSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := signaling.Upgrade(w, r)
		if err != nil {
			return
		}
		s.Accept(conn)
	}))
	t.Cleanup(func() {
		httpSrv.Close()
		cancel()
	})
	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http")
	return s, wsURL
}

func TestAcceptRejectsUnknownPeer(t *testing.T) {
	_, wsURL := testServer(t, []config.PeerConfig{{Name: "fabric-b", Password: "secret"}}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := signaling.Dial(ctx, wsURL)
	require.NoError(t, err)
	defer conn.Close()

	req, _ := signaling.NewRequest(signaling.EventRegister, "r1", signaling.RegisterInterconnectParam{Name: "fabric-x", Password: "wrong"})
	require.NoError(t, conn.Send(req))

	resp, err := conn.Recv()
	require.NoError(t, err)
	require.False(t, resp.Succeeded())
}

func TestAcceptAcceptsKnownPeer(t *testing.T) {
	_, wsURL := testServer(t, []config.PeerConfig{{Name: "fabric-b", Password: "secret"}}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := signaling.Dial(ctx, wsURL)
	require.NoError(t, err)
	defer conn.Close()

	req, _ := signaling.NewRequest(signaling.EventRegister, "r2", signaling.RegisterInterconnectParam{Name: "fabric-b", Password: "secret"})
	require.NoError(t, conn.Send(req))

	resp, err := conn.Recv()
	require.NoError(t, err)
	require.True(t, resp.Succeeded())
}

func TestConnectLoopsBeforeConnectMediaIsRejected(t *testing.T) {
	_, wsURL := testServer(t, []config.PeerConfig{{Name: "fabric-b", Password: "secret"}}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := signaling.Dial(ctx, wsURL)
	require.NoError(t, err)
	defer conn.Close()

	req, _ := signaling.NewRequest(signaling.EventRegister, "r3", signaling.RegisterInterconnectParam{Name: "fabric-b", Password: "secret"})
	require.NoError(t, conn.Send(req))
	resp, err := conn.Recv()
	require.NoError(t, err)
	require.True(t, resp.Succeeded())

	loopsReq, _ := signaling.NewRequest(signaling.EventConnectLoops, "r4", signaling.ConnectLoopsParam{
		Loops: []signaling.LoopSSRC{{Name: "conf-1", SSRC: 5}},
	})
	require.NoError(t, conn.Send(loopsReq))

	loopsResp, err := conn.Recv()
	require.NoError(t, err)
	require.False(t, loopsResp.Succeeded())
}
