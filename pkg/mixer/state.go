package mixer

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// State names for the Mixer's lifecycle machine (§4.2.8), modeled with
// looplab/fsm following pkg/dialog/refer_fsm.go's pattern.
const (
	StateUnbound        = "unbound"
	StateBound           = "bound"
	StateBoundWithLoops  = "bound_with_loops"
)

func newMixerFSM() *fsm.FSM {
	return fsm.NewFSM(
		StateUnbound,
		fsm.Events{
			{Name: "acquire", Src: []string{StateUnbound}, Dst: StateBound},
			{Name: "join", Src: []string{StateBound, StateBoundWithLoops}, Dst: StateBoundWithLoops},
			{Name: "leave_to_empty", Src: []string{StateBoundWithLoops}, Dst: StateBound},
			{Name: "leave", Src: []string{StateBoundWithLoops}, Dst: StateBoundWithLoops},
			{Name: "release", Src: []string{StateBound, StateBoundWithLoops}, Dst: StateUnbound},
			{Name: "signal_error", Src: []string{StateBound, StateBoundWithLoops}, Dst: StateUnbound},
		},
		nil,
	)
}

// fireEvent is a tiny wrapper since fsm.FSM.Event takes a context in this
// library version; kept as a helper so callers don't repeat context.Background().
// A declared self-transition (join or leave while Bound-with-loops) succeeds:
// the library's NoTransitionError for it is not reported as a failure.
func fireEvent(f *fsm.FSM, event string) error {
	err := f.Event(context.Background(), event)
	if errors.As(err, new(fsm.NoTransitionError)) {
		return nil
	}
	return err
}
