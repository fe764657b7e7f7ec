package controlplane

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

func testManager(t *testing.T) (*Manager, string) {
	t.Helper()
	mgr := New(config.ControlPlaneConfig{}, 4, metrics.New(prometheus.NewRegistry()))
	srv := httptest.NewServer(http.HandlerFunc(mgr.ServeHTTP))
	t.Cleanup(func() {
		srv.Close()
		mgr.Stop()
	})
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return mgr, wsURL
}

// fakeWorker dials the manager, registers, consumes the configure push, and
// answers every subsequent request with a plain success response — enough
// to exercise the manager's call() round trip without a real mixer.
func fakeWorker(t *testing.T, ctx context.Context, wsURL, uuid string) *signaling.Conn {
	t.Helper()
	conn, err := signaling.Dial(ctx, wsURL)
	require.NoError(t, err)

	req, err := signaling.NewRequest(signaling.EventRegister, uuid, signaling.RegisterMixerParam{UUID: uuid, Type: "audio"})
	require.NoError(t, err)
	require.NoError(t, conn.Send(req))

	resp, err := conn.Recv()
	require.NoError(t, err)
	require.True(t, resp.Succeeded())

	// The manager pushes `configure` right after registering the worker in
	// its bookkeeping map; waiting for it here guarantees the manager-side
	// call() path can already find this worker before the test proceeds.
	configureEv, err := conn.Recv()
	require.NoError(t, err)
	require.Equal(t, signaling.EventConfigure, configureEv.Event)
	configureResp, _ := signaling.NewResponse(configureEv.Event, configureEv.UUID, struct{}{})
	require.NoError(t, conn.Send(configureResp))

	go func() {
		for {
			ev, err := conn.Recv()
			if err != nil {
				return
			}
			reply, _ := signaling.NewResponse(ev.Event, ev.UUID, struct{}{})
			conn.Send(reply)
		}
	}()

	return conn
}

func TestAcquireAndReleaseRoundTrip(t *testing.T) {
	mgr, wsURL := testManager(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn := fakeWorker(t, ctx, wsURL, "worker-1")
	defer conn.Close()

	err := mgr.AcquireMixer(ctx, "session-1", signaling.ForwardSpec{Host: "127.0.0.1", Port: 5004, SSRC: 42, PayloadType: 111})
	require.NoError(t, err)

	_, bound := mgr.reg.Count()
	require.Equal(t, 1, bound)

	require.NoError(t, mgr.ReleaseMixer(ctx, "session-1"))
	_, bound = mgr.reg.Count()
	require.Equal(t, 0, bound)
}

func TestAcquireFailsWithNoFreeSlot(t *testing.T) {
	mgr, _ := testManager(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// No worker registered at all: the registry has no live slots.
	err := mgr.AcquireMixer(ctx, "session-2", signaling.ForwardSpec{})
	require.Error(t, err)
}

func TestWorkerDisconnectSurfacesMixerLost(t *testing.T) {
	mgr, wsURL := testManager(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	lost := make(chan string, 1)
	mgr.OnMixerLost(func(sessionID string) { lost <- sessionID })

	conn := fakeWorker(t, ctx, wsURL, "worker-2")

	require.NoError(t, mgr.AcquireMixer(ctx, "session-3", signaling.ForwardSpec{Host: "127.0.0.1", Port: 6000}))

	conn.Close()

	select {
	case sessionID := <-lost:
		require.Equal(t, "session-3", sessionID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for mixer_lost notification")
	}
}
