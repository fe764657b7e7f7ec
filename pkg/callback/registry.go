// Package callback implements the Control Plane's callback correlation
// registry (§4.3.2): a UUID-keyed map of (handler, deadline) entries, with a
// background sweep goroutine reclaiming and timeout-notifying expired
// entries — the teacher's background-sweep idiom
// (pkg/rtp/session_manager.go's cleanupRoutine) applied to a different map.
package callback

import (
	"context"
	"sync"
	"time"

	"github.com/mcfabric/mcfabric/pkg/signaling"
)

// Handler is invoked exactly once per registered entry: on response arrival,
// on deadline expiry (synthesized timeout), or never if the registry is
// stopped first with entries still pending (callers should not rely on that
// path; it only happens at process shutdown).
type Handler func(resp signaling.Event, timedOut bool)

type entry struct {
	handler  Handler
	deadline time.Time
}

// DefaultDeadline is the callback entry's default absolute deadline offset
// from registration time (§5: "Callback entries expire at an absolute
// deadline (default 10 s)").
const DefaultDeadline = 10 * time.Second

// Registry correlates request UUIDs to response handlers.
type Registry struct {
	mu      sync.Mutex
	entries map[string]entry

	sweepInterval time.Duration
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// New starts a Registry with a background sweep goroutine.
func New(ctx context.Context, sweepInterval time.Duration) *Registry {
	if sweepInterval <= 0 {
		sweepInterval = time.Second
	}
	sweepCtx, cancel := context.WithCancel(ctx)
	r := &Registry{
		entries:       make(map[string]entry),
		sweepInterval: sweepInterval,
		cancel:        cancel,
	}
	r.wg.Add(1)
	go r.sweepLoop(sweepCtx)
	return r
}

// Register inserts a callback entry for the given request UUID with the
// default deadline. The caller does this at the moment it emits the
// corresponding request (P2).
func (r *Registry) Register(uuid string, h Handler) {
	r.RegisterWithDeadline(uuid, h, time.Now().Add(DefaultDeadline))
}

// RegisterWithDeadline is Register with an explicit absolute deadline.
func (r *Registry) RegisterWithDeadline(uuid string, h Handler, deadline time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[uuid] = entry{handler: h, deadline: deadline}
}

// Resolve looks up the entry for ev.UUID, removes it, and invokes its
// handler with timedOut=false. Returns false if no entry was registered for
// that UUID (a stray/duplicate response).
func (r *Registry) Resolve(ev signaling.Event) bool {
	r.mu.Lock()
	e, ok := r.entries[ev.UUID]
	if ok {
		delete(r.entries, ev.UUID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	e.handler(ev, false)
	return true
}

// Pending reports the number of outstanding entries, for tests and metrics.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Stop halts the sweep goroutine. Entries still pending at Stop time are
// simply dropped (no final notification), matching the original's
// "reclaimed" language for deadline-driven cleanup.
func (r *Registry) Stop() {
	r.cancel()
	r.wg.Wait()
}

func (r *Registry) sweepLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.reclaimExpired(now)
		}
	}
}

func (r *Registry) reclaimExpired(now time.Time) {
	var expired []entry

	r.mu.Lock()
	for uuid, e := range r.entries {
		if now.After(e.deadline) {
			expired = append(expired, e)
			delete(r.entries, uuid)
		}
	}
	r.mu.Unlock()

	for _, e := range expired {
		e.handler(signaling.Event{}, true)
	}
}
