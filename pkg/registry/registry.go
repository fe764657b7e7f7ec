// Package registry implements the Backend Registry (C3, §4.3.1): a
// socket-indexed slot array plus a session-id->slot index, matching
// ov_mc_backend_registry.c's two-index design.
package registry

import (
	"sync"

	"github.com/mcfabric/mcfabric/pkg/ferrors"
)

// Slot holds one worker's registration state. A Slot is either free
// (Live==false) or live; a live slot is either unbound (SessionID=="") or
// bound to exactly one session id.
type Slot struct {
	Socket     int
	WorkerUUID string
	SessionID  string
	RemoteAddr string
	Live       bool
}

// Registry is the socket-indexed worker slot table plus session index.
type Registry struct {
	mu       sync.RWMutex
	slots    []Slot              // index == socket fd
	bySessID map[string]int      // session id -> slot index
	liveSet  map[int]struct{}    // slot index -> present iff live
}

// New constructs a Registry sized to maxSockets slots (§3's "Registry slot
// sizing" — the caller supplies the OS's max-supported-socket count,
// typically read via golang.org/x/sys/unix.Getrlimit by the owner).
func New(maxSockets int) *Registry {
	if maxSockets <= 0 {
		maxSockets = 1024
	}
	return &Registry{
		slots:    make([]Slot, maxSockets),
		bySessID: make(map[string]int),
		liveSet:  make(map[int]struct{}),
	}
}

func (r *Registry) inRange(socket int) bool {
	return socket >= 0 && socket < len(r.slots)
}

// RegisterMixer marks the slot at `socket` live and free, bound to no
// session. Fails with CodeResourceSlotOutOfRange if the socket is out of
// range, or CodeProtocolUnexpectedState if already live.
func (r *Registry) RegisterMixer(socket int, workerUUID, remoteAddr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.inRange(socket) {
		return ferrors.New("registry.RegisterMixer", ferrors.CodeResourceSlotOutOfRange, nil)
	}
	if _, live := r.liveSet[socket]; live {
		return ferrors.New("registry.RegisterMixer", ferrors.CodeProtocolUnexpectedState, nil)
	}

	r.slots[socket] = Slot{Socket: socket, WorkerUUID: workerUUID, RemoteAddr: remoteAddr, Live: true}
	r.liveSet[socket] = struct{}{}
	return nil
}

// UnregisterMixer reclaims the slot. If a session was bound, its id is
// returned so the caller can surface a `mixer_lost` notification (§4.3.1,
// §4.3.4); ok is false if the slot was not live.
func (r *Registry) UnregisterMixer(socket int) (lostSessionID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.inRange(socket) {
		return "", false
	}
	if _, live := r.liveSet[socket]; !live {
		return "", false
	}

	slot := r.slots[socket]
	delete(r.liveSet, socket)
	if slot.SessionID != "" {
		delete(r.bySessID, slot.SessionID)
		lostSessionID = slot.SessionID
	}
	r.slots[socket] = Slot{}
	return lostSessionID, true
}

// Acquire binds session_id to any free live slot. Idempotent if the session
// is already bound (returns its existing slot). Returns
// CodeResourceNoFreeSlot if no free live slot exists.
func (r *Registry) Acquire(sessionID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if socket, ok := r.bySessID[sessionID]; ok {
		return socket, nil
	}

	for socket := range r.liveSet {
		if r.slots[socket].SessionID == "" {
			slot := r.slots[socket]
			slot.SessionID = sessionID
			r.slots[socket] = slot
			r.bySessID[sessionID] = socket
			return socket, nil
		}
	}
	return 0, ferrors.New("registry.Acquire", ferrors.CodeResourceNoFreeSlot, nil)
}

// Release unbinds session_id, keeping its slot live and free.
func (r *Registry) Release(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	socket, ok := r.bySessID[sessionID]
	if !ok {
		return ferrors.New("registry.Release", ferrors.CodeSessionUnknown, nil)
	}
	delete(r.bySessID, sessionID)
	slot := r.slots[socket]
	slot.SessionID = ""
	r.slots[socket] = slot
	return nil
}

// GetBySession returns the slot bound to session_id.
func (r *Registry) GetBySession(sessionID string) (Slot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	socket, ok := r.bySessID[sessionID]
	if !ok {
		return Slot{}, false
	}
	return r.slots[socket], true
}

// GetBySocket returns the slot at the given socket fd.
func (r *Registry) GetBySocket(socket int) (Slot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.inRange(socket) {
		return Slot{}, false
	}
	if _, live := r.liveSet[socket]; !live {
		return Slot{}, false
	}
	return r.slots[socket], true
}

// Count returns (live, bound) slot counts (§4.3.1's `count()`).
func (r *Registry) Count() (live, bound int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	live = len(r.liveSet)
	bound = len(r.bySessID)
	return
}
