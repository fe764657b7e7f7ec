package interconnect

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSessionFSMHappyPath(t *testing.T) {
	f := newSessionFSM()
	require.Equal(t, StateIdle, f.Current())

	require.NoError(t, fireEvent(f, "start_handshake"))
	require.Equal(t, StateHandshakeInFlight, f.Current())

	require.NoError(t, fireEvent(f, "retry"))
	require.Equal(t, StateHandshakeInFlight, f.Current())

	require.NoError(t, fireEvent(f, "handshake_done"))
	require.Equal(t, StateReady, f.Current())
}

func TestSessionFSMFatalErrorFromAnyState(t *testing.T) {
	f := newSessionFSM()
	require.NoError(t, fireEvent(f, "fatal_error"))
	require.Equal(t, StateClosed, f.Current())

	f2 := newSessionFSM()
	require.NoError(t, fireEvent(f2, "start_handshake"))
	require.NoError(t, fireEvent(f2, "fatal_error"))
	require.Equal(t, StateClosed, f2.Current())
}

func TestSessionFSMRejectsHandshakeDoneFromIdle(t *testing.T) {
	f := newSessionFSM()
	require.Error(t, fireEvent(f, "handshake_done"))
}
