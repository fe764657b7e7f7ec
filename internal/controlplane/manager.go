// Package controlplane implements the manager side of the Backend Registry
// and Control Plane (C3, §4.3): accepting mixer worker connections, running
// the register/configure handshake, sending acquire and release requests,
// and surfacing mixer_lost when a worker disconnects mid-session. The
// Manager sends no join, leave, volume, forward, state or shutdown requests.
package controlplane

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mcfabric/mcfabric/internal/config"
	"github.com/mcfabric/mcfabric/pkg/callback"
	"github.com/mcfabric/mcfabric/pkg/ferrors"
	"github.com/mcfabric/mcfabric/pkg/metrics"
	"github.com/mcfabric/mcfabric/pkg/registry"
	"github.com/mcfabric/mcfabric/pkg/signaling"
)

// worker is one connected mixer worker's live signaling socket.
type worker struct {
	socket int
	uuid   string
	conn   *signaling.Conn
}

// Manager is the Control Plane: it accepts worker connections over
// websocket, runs the registration/configuration handshake, and brokers
// the asynchronous acquire and release RPCs (AcquireMixer, ReleaseMixer)
// via the callback registry (§4.3.2, §4.3.4). It has no methods for the
// join/leave/volume/forward/state/shutdown events.
type Manager struct {
	cfg config.ControlPlaneConfig

	reg       *registry.Registry
	callbacks *callback.Registry
	metrics   *metrics.Metrics
	log       *slog.Logger

	nextSocket int64

	mu      sync.RWMutex
	workers map[int]*worker // keyed by synthetic socket id

	onMixerLost func(sessionID string)
}

// New constructs a Manager. maxSockets sizes the registry's slot array
// (§3); 0 lets the registry choose a platform-appropriate default.
func New(cfg config.ControlPlaneConfig, maxSockets int, m *metrics.Metrics) *Manager {
	if maxSockets <= 0 {
		maxSockets = registry.MaxSupportedSockets()
	}
	return &Manager{
		cfg:       cfg,
		reg:       registry.New(maxSockets),
		callbacks: callback.New(context.Background(), time.Second),
		metrics:   m,
		log:       slog.With("component", "controlplane"),
		workers:   make(map[int]*worker),
	}
}

// OnMixerLost registers the callback invoked when a worker holding a bound
// session disconnects (§4.3.1, §4.3.4).
func (mgr *Manager) OnMixerLost(fn func(sessionID string)) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	mgr.onMixerLost = fn
}

// Stop halts the callback sweep goroutine.
func (mgr *Manager) Stop() {
	mgr.callbacks.Stop()
}

// ServeHTTP upgrades a worker's HTTP request to a signaling socket and runs
// its lifecycle until disconnect (§4.3.4, §4.3.5).
func (mgr *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := signaling.Upgrade(w, r)
	if err != nil {
		mgr.log.Warn("worker upgrade failed", "err", err)
		return
	}
	mgr.runWorker(conn)
}

func (mgr *Manager) runWorker(conn *signaling.Conn) {
	socket := int(atomic.AddInt64(&mgr.nextSocket, 1))
	defer mgr.disconnectWorker(socket, conn)

	ev, err := conn.Recv()
	if err != nil {
		return
	}
	if ev.Event != signaling.EventRegister {
		conn.Send(signaling.NewErrorResponse(ev.Event, ev.UUID, ferrors.CodeProtocolUnexpectedState, "expected register"))
		return
	}
	var param signaling.RegisterMixerParam
	if err := signaling.DecodeParameter(ev, &param); err != nil || param.Type != "audio" {
		conn.Send(signaling.NewErrorResponse(ev.Event, ev.UUID, ferrors.CodeProtocolMalformed, "bad register parameter"))
		return
	}

	if err := mgr.reg.RegisterMixer(socket, param.UUID, conn.RemoteAddr()); err != nil {
		conn.Send(signaling.NewErrorResponse(ev.Event, ev.UUID, ferrors.CodeProtocolUnexpectedState, "registration failed"))
		return
	}
	if mgr.metrics != nil {
		live, bound := mgr.reg.Count()
		mgr.metrics.RegistrySlotsLive.Set(float64(live))
		mgr.metrics.RegistrySlotsBound.Set(float64(bound))
	}

	resp, _ := signaling.NewResponse(ev.Event, ev.UUID, struct{}{})
	conn.Send(resp)

	w := &worker{socket: socket, uuid: param.UUID, conn: conn}
	mgr.mu.Lock()
	mgr.workers[socket] = w
	mgr.mu.Unlock()

	configureReq, _ := signaling.NewRequest(signaling.EventConfigure, uuid.NewString(), config.DefaultMixerDefaults())
	conn.Send(configureReq)

	for {
		ev, err := conn.Recv()
		if err != nil {
			return
		}
		if mgr.callbacks.Resolve(ev) {
			continue
		}
		mgr.log.Debug("unsolicited event from worker, ignoring", "event", ev.Event, "socket", socket)
	}
}

func (mgr *Manager) disconnectWorker(socket int, conn *signaling.Conn) {
	conn.Close()
	mgr.mu.Lock()
	delete(mgr.workers, socket)
	mgr.mu.Unlock()

	lostSessionID, ok := mgr.reg.UnregisterMixer(socket)
	if mgr.metrics != nil {
		live, bound := mgr.reg.Count()
		mgr.metrics.RegistrySlotsLive.Set(float64(live))
		mgr.metrics.RegistrySlotsBound.Set(float64(bound))
	}
	if ok && lostSessionID != "" {
		mgr.mu.RLock()
		onLost := mgr.onMixerLost
		mgr.mu.RUnlock()
		if onLost != nil {
			onLost(lostSessionID)
		}
	}
}

// AcquireMixer binds sessionID to a free worker and sends it an `acquire`
// request carrying the output forward target (§4.3.1, §4.3.4, §6.1).
func (mgr *Manager) AcquireMixer(ctx context.Context, sessionID string, fwd signaling.ForwardSpec) error {
	socket, err := mgr.reg.Acquire(sessionID)
	if err != nil {
		return err
	}
	if mgr.metrics != nil {
		live, bound := mgr.reg.Count()
		mgr.metrics.RegistrySlotsLive.Set(float64(live))
		mgr.metrics.RegistrySlotsBound.Set(float64(bound))
	}

	_, err = mgr.call(ctx, socket, signaling.EventAcquire, signaling.AcquireParam{
		Name:        sessionID,
		Socket:      net.JoinHostPort(fwd.Host, strconv.Itoa(fwd.Port)),
		SSRC:        fwd.SSRC,
		PayloadType: fwd.PayloadType,
	})
	return err
}

// ReleaseMixer reverts a session's worker to idle (§4.3.4's `release`).
func (mgr *Manager) ReleaseMixer(ctx context.Context, sessionID string) error {
	slot, ok := mgr.reg.GetBySession(sessionID)
	if !ok {
		return ferrors.New("controlplane.ReleaseMixer", ferrors.CodeSessionUnknown, nil)
	}
	if _, err := mgr.call(ctx, slot.Socket, signaling.EventRelease, signaling.ReleaseParam{Name: sessionID}); err != nil {
		return err
	}
	return mgr.reg.Release(sessionID)
}

// call sends a request event to the worker bound to socket and blocks for
// its response (or the callback registry's default deadline, §4.3.2).
func (mgr *Manager) call(ctx context.Context, socket int, event string, param any) (signaling.Event, error) {
	mgr.mu.RLock()
	w, ok := mgr.workers[socket]
	mgr.mu.RUnlock()
	if !ok {
		return signaling.Event{}, ferrors.New("controlplane.call", ferrors.CodeSessionUnknown, nil)
	}

	id := uuid.NewString()
	req, err := signaling.NewRequest(event, id, param)
	if err != nil {
		return signaling.Event{}, err
	}

	result := make(chan signaling.Event, 1)
	timedOut := make(chan struct{}, 1)
	mgr.callbacks.Register(id, func(resp signaling.Event, to bool) {
		if to {
			close(timedOut)
			return
		}
		result <- resp
	})

	if err := w.conn.Send(req); err != nil {
		return signaling.Event{}, err
	}

	select {
	case <-ctx.Done():
		return signaling.Event{}, ctx.Err()
	case <-timedOut:
		return signaling.Event{}, ferrors.New("controlplane.call", ferrors.CodeTimeoutCallback, nil)
	case resp := <-result:
		if !resp.Succeeded() {
			return resp, ferrors.New("controlplane.call", ferrors.CodeProtocolMalformed, nil)
		}
		return resp, nil
	}
}
