// Command fabricmixer is the mixer worker process (§4.3.3): it dials the
// fabric manager's Control Plane socket, registers as an audio worker, and
// drives one pkg/mixer.Mixer plus its joined pkg/loop.Loop instances in
// response to manager-pushed signaling events.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mcfabric/mcfabric/internal/config"
	"github.com/mcfabric/mcfabric/pkg/codec"
	"github.com/mcfabric/mcfabric/pkg/ferrors"
	"github.com/mcfabric/mcfabric/pkg/loop"
	"github.com/mcfabric/mcfabric/pkg/metrics"
	"github.com/mcfabric/mcfabric/pkg/mixer"
	"github.com/mcfabric/mcfabric/pkg/signaling"
)

func main() {
	configPath := flag.String("config", "", "optional path to a worker config file (overrides -manager/-uuid defaults)")
	managerURL := flag.String("manager", "ws://127.0.0.1:8900/worker", "websocket URL of the fabric manager's worker socket")
	workerUUIDFlag := flag.String("uuid", "", "stable worker identity; a random one is generated if empty")
	flag.Parse()

	log := slog.With("component", "fabricmixer")

	wc := config.MixerWorkerConfig{ManagerURL: *managerURL, UUID: *workerUUIDFlag}
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Error("failed to load worker config", "err", err)
			os.Exit(1)
		}
		if cfg.MixerWorker.ManagerURL != "" {
			wc.ManagerURL = cfg.MixerWorker.ManagerURL
		}
		if cfg.MixerWorker.UUID != "" {
			wc.UUID = cfg.MixerWorker.UUID
		}
	}
	if wc.UUID == "" {
		wc.UUID = uuid.NewString()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	conn, err := signaling.Dial(ctx, wc.ManagerURL)
	if err != nil {
		log.Error("failed to dial manager", "err", err)
		os.Exit(1)
	}
	defer conn.Close()

	workerUUID := wc.UUID
	regReq, _ := signaling.NewRequest(signaling.EventRegister, workerUUID, signaling.RegisterMixerParam{UUID: workerUUID, Type: "audio"})
	if err := conn.Send(regReq); err != nil {
		log.Error("failed to send register", "err", err)
		os.Exit(1)
	}
	regResp, err := conn.Recv()
	if err != nil || !regResp.Succeeded() {
		log.Error("registration rejected", "err", err)
		os.Exit(1)
	}
	log.Info("registered with manager", "uuid", workerUUID)

	w := &worker{
		uuid:  workerUUID,
		conn:  conn,
		log:   log,
		cfg:   mixer.DefaultConfig(),
		loops: make(map[string]loop.Loop),
		m:     metrics.New(prometheus.NewRegistry()),
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	w.run(ctx)
}

// worker holds the single Mixer this process drives, plus the joined Loop
// instances keyed by loop name so `leave` can tear them down.
type worker struct {
	uuid string
	conn *signaling.Conn
	log  *slog.Logger

	cfg   mixer.Config
	mx    *mixer.Mixer
	loops map[string]loop.Loop

	m *metrics.Metrics
}

func (w *worker) run(ctx context.Context) {
	for {
		ev, err := w.conn.Recv()
		if err != nil {
			w.log.Info("manager connection closed", "err", err)
			return
		}

		switch ev.Event {
		case signaling.EventConfigure:
			w.handleConfigure(ev)
		case signaling.EventAcquire:
			w.handleAcquire(ctx, ev)
		case signaling.EventJoin:
			w.handleJoin(ctx, ev)
		case signaling.EventLeave:
			w.handleLeave(ev)
		case signaling.EventVolume:
			w.handleVolume(ev)
		case signaling.EventState:
			w.handleState(ev)
		case signaling.EventRelease:
			w.handleRelease(ev)
		case signaling.EventShutdown:
			w.handleShutdown(ev)
			return
		default:
			w.reply(ev, nil, ferrors.CodeProtocolUnknownEvent, "unhandled event")
		}
	}
}

// wireCode recovers the original *ferrors.Error's code from a mixer
// operation failure, falling back to fallback when err isn't one (e.g. a
// plain JSON error).
func wireCode(err error, fallback ferrors.Code) ferrors.Code {
	var fe *ferrors.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fallback
}

func (w *worker) reply(ev signaling.Event, response any, failCode ferrors.Code, failDesc string) {
	if failDesc != "" {
		w.conn.Send(signaling.NewErrorResponse(ev.Event, ev.UUID, failCode, failDesc))
		return
	}
	resp, err := signaling.NewResponse(ev.Event, ev.UUID, response)
	if err != nil {
		w.conn.Send(signaling.NewErrorResponse(ev.Event, ev.UUID, ferrors.CodeProtocolMalformed, err.Error()))
		return
	}
	w.conn.Send(resp)
}

func (w *worker) handleConfigure(ev signaling.Event) {
	// §6.3's configure payload is the manager's MixerDefaults; the worker
	// translates it into pkg/mixer.Config here and uses it for the next
	// acquire.
	var defaults struct {
		VAD struct {
			ZeroCrossingsRateHertz int  `json:"zero_crossings_rate_hertz"`
			PowerlevelDensityDBFS  int  `json:"powerlevel_density_dbfs"`
			Enabled                bool `json:"enabled"`
			Drop                   bool `json:"drop"`
		} `json:"vad"`
		SampleRateHz         int  `json:"sample_rate_hz"`
		ComfortNoiseDB       int  `json:"comfort_noise"`
		FrameBuffer          int  `json:"frame_buffer"`
		NormalizeInput       bool `json:"normalize_input"`
		RTPKeepalive         bool `json:"rtp_keepalive"`
		NormalizeMixedByRoot bool `json:"normalize_mixed_by_root"`
		GCBatchSize          int  `json:"gc_batch_size"`
	}
	if err := signaling.DecodeParameter(ev, &defaults); err != nil {
		w.reply(ev, nil, ferrors.CodeProtocolMalformed, err.Error())
		return
	}

	cfg := mixer.DefaultConfig()
	cfg.VAD.ZeroCrossingsHz = defaults.VAD.ZeroCrossingsRateHertz
	cfg.VAD.PowerLevelDBFS = defaults.VAD.PowerlevelDensityDBFS
	cfg.VAD.Enabled = defaults.VAD.Enabled
	cfg.VAD.DropWhenNoVoice = defaults.VAD.Drop
	cfg.SampleRateHz = defaults.SampleRateHz
	cfg.ComfortNoiseDB = defaults.ComfortNoiseDB
	cfg.FrameBufferSize = defaults.FrameBuffer
	cfg.NormalizeInput = defaults.NormalizeInput
	cfg.RTPKeepalive = defaults.RTPKeepalive
	cfg.NormalizeMixedByRoot = defaults.NormalizeMixedByRoot
	cfg.GCBatchSize = defaults.GCBatchSize
	w.cfg = cfg

	w.reply(ev, struct{}{}, 0, "")
}

func (w *worker) handleAcquire(ctx context.Context, ev signaling.Event) {
	var param signaling.AcquireParam
	if err := signaling.DecodeParameter(ev, &param); err != nil {
		w.reply(ev, nil, ferrors.CodeProtocolMalformed, err.Error())
		return
	}

	host, portStr, err := net.SplitHostPort(param.Socket)
	if err != nil {
		w.reply(ev, nil, ferrors.CodeProtocolMalformed, "socket must be host:port")
		return
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		w.reply(ev, nil, ferrors.CodeProtocolMalformed, "bad port in socket")
		return
	}

	mx, err := mixer.New(w.cfg, func() (codec.Codec, error) {
		return codec.New(codec.Config{SampleRateHz: w.cfg.SampleRateHz, Channels: 1})
	}, w.m)
	if err != nil {
		w.reply(ev, nil, wireCode(err, ferrors.CodeProtocolUnexpectedState), err.Error())
		return
	}

	fwd := mixer.Forward{Host: host, Port: port, SSRC: param.SSRC, PayloadType: param.PayloadType}
	if err := mx.Bind(param.Name, fwd); err != nil {
		w.reply(ev, nil, wireCode(err, ferrors.CodeProtocolUnexpectedState), err.Error())
		return
	}
	mx.Start(ctx)

	w.mx = mx
	w.reply(ev, struct{}{}, 0, "")
}

func (w *worker) handleJoin(ctx context.Context, ev signaling.Event) {
	var param signaling.JoinParam
	if err := signaling.DecodeParameter(ev, &param); err != nil {
		w.reply(ev, nil, ferrors.CodeProtocolMalformed, err.Error())
		return
	}
	if w.mx == nil {
		w.reply(ev, nil, ferrors.CodeProtocolUnexpectedState, "no acquired mixer")
		return
	}

	l, err := loop.Create(ctx, param.Name, param.Socket.Host, param.Socket.Port, func(name string, err error) {
		w.log.Warn("loop closed", "loop", name, "err", err)
	})
	if err != nil {
		w.reply(ev, nil, ferrors.CodeSocketJoinFailed, err.Error())
		return
	}
	if err := w.mx.Join(l, param.Volume); err != nil {
		l.Close()
		w.reply(ev, nil, wireCode(err, ferrors.CodeProtocolUnexpectedState), err.Error())
		return
	}
	w.loops[param.Name] = l
	w.reply(ev, struct{}{}, 0, "")
}

func (w *worker) handleLeave(ev signaling.Event) {
	var param signaling.LeaveParam
	if err := signaling.DecodeParameter(ev, &param); err != nil {
		w.reply(ev, nil, ferrors.CodeProtocolMalformed, err.Error())
		return
	}
	if w.mx == nil {
		w.reply(ev, nil, ferrors.CodeProtocolUnexpectedState, "no acquired mixer")
		return
	}
	if err := w.mx.Leave(param.Loop); err != nil {
		w.reply(ev, nil, wireCode(err, ferrors.CodeProtocolUnexpectedState), err.Error())
		return
	}
	if l, ok := w.loops[param.Loop]; ok {
		l.Close()
		delete(w.loops, param.Loop)
	}
	w.reply(ev, struct{}{}, 0, "")
}

func (w *worker) handleVolume(ev signaling.Event) {
	var param signaling.VolumeParam
	if err := signaling.DecodeParameter(ev, &param); err != nil {
		w.reply(ev, nil, ferrors.CodeProtocolMalformed, err.Error())
		return
	}
	if w.mx == nil {
		w.reply(ev, nil, ferrors.CodeProtocolUnexpectedState, "no acquired mixer")
		return
	}
	if err := w.mx.SetVolume(param.Loop, param.Volume); err != nil {
		w.reply(ev, nil, wireCode(err, ferrors.CodeProtocolUnexpectedState), err.Error())
		return
	}
	w.reply(ev, struct{}{}, 0, "")
}

func (w *worker) handleState(ev signaling.Event) {
	if w.mx == nil {
		w.reply(ev, nil, ferrors.CodeProtocolUnexpectedState, "no acquired mixer")
		return
	}
	w.reply(ev, w.mx.Snapshot(), 0, "")
}

func (w *worker) handleRelease(ev signaling.Event) {
	if w.mx == nil {
		w.reply(ev, nil, ferrors.CodeProtocolUnexpectedState, "no acquired mixer")
		return
	}
	for name, l := range w.loops {
		l.Close()
		delete(w.loops, name)
	}
	w.mx.Stop()
	if err := w.mx.Release(); err != nil {
		w.reply(ev, nil, wireCode(err, ferrors.CodeProtocolUnexpectedState), err.Error())
		return
	}
	w.mx = nil
	w.reply(ev, struct{}{}, 0, "")
}

func (w *worker) handleShutdown(ev signaling.Event) {
	w.log.Info("shutdown requested", "uuid", ev.UUID)
}
