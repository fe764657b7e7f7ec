package interconnectserver

import (
	"context"
	"sync"

	"github.com/mcfabric/mcfabric/pkg/loop"
)

// loopHub fans one local Loop's inbound multicast frames out to every
// Interconnect Session currently bridging that loop (§4.4.4's
// internal->external path). A bare loop.Loop only has one Frames()
// channel, so a single goroutine drains it and re-dispatches to whatever
// subscribers are registered at the time.
type loopHub struct {
	l loop.Loop

	mu          sync.RWMutex
	subscribers map[string]func(payload []byte) // keyed by peer name

	cancel context.CancelFunc
}

func newLoopHub(ctx context.Context, l loop.Loop) *loopHub {
	hubCtx, cancel := context.WithCancel(ctx)
	h := &loopHub{
		l:           l,
		subscribers: make(map[string]func(payload []byte)),
		cancel:      cancel,
	}
	go h.pump(hubCtx)
	return h
}

func (h *loopHub) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-h.l.Frames():
			if !ok {
				return
			}
			h.mu.RLock()
			for _, fn := range h.subscribers {
				fn(frame.Payload)
			}
			h.mu.RUnlock()
		}
	}
}

func (h *loopHub) subscribe(peerName string, fn func(payload []byte)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[peerName] = fn
}

func (h *loopHub) unsubscribe(peerName string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers, peerName)
}

func (h *loopHub) close() {
	h.cancel()
	h.l.Close()
}
