package interconnect

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// State names for the Interconnect Session's DTLS lifecycle (§4.4.2),
// mirroring the mixer's FSM pattern (pkg/mixer/state.go).
const (
	StateIdle              = "idle"
	StateHandshakeInFlight  = "handshake_in_flight"
	StateReady              = "ready"
	StateClosed             = "closed"
)

func newSessionFSM() *fsm.FSM {
	return fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: "start_handshake", Src: []string{StateIdle}, Dst: StateHandshakeInFlight},
			{Name: "retry", Src: []string{StateHandshakeInFlight}, Dst: StateHandshakeInFlight},
			{Name: "handshake_done", Src: []string{StateHandshakeInFlight}, Dst: StateReady},
			{Name: "fatal_error", Src: []string{StateIdle, StateHandshakeInFlight, StateReady}, Dst: StateClosed},
			{Name: "reset", Src: []string{StateClosed, StateReady}, Dst: StateIdle},
		},
		nil,
	)
}

// fireEvent fires event on f. A declared self-transition (retry) succeeds:
// the library's NoTransitionError for it is not reported as a failure.
func fireEvent(f *fsm.FSM, event string) error {
	err := f.Event(context.Background(), event)
	if errors.As(err, new(fsm.NoTransitionError)) {
		return nil
	}
	return err
}
