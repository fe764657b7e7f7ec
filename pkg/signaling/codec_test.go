package signaling

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mcfabric/mcfabric/pkg/ferrors"
)

func TestRequestResponseRoundTrip(t *testing.T) {
	req, err := NewRequest(EventJoin, "req-1", JoinParam{
		Name:   "loopA",
		Socket: SocketSpec{Host: "239.0.0.1", Port: 5004, Type: "multicast"},
		Volume: 50,
	})
	require.NoError(t, err)
	require.Equal(t, EventJoin, req.Event)
	require.True(t, req.Succeeded())

	var decoded JoinParam
	require.NoError(t, DecodeParameter(req, &decoded))
	require.Equal(t, "loopA", decoded.Name)
	require.Equal(t, 50, decoded.Volume)
}

func TestErrorResponseNotSucceeded(t *testing.T) {
	resp := NewErrorResponse(EventAcquire, "req-2", ferrors.CodeSessionUnknown, "no such session")
	require.False(t, resp.Succeeded())
	require.Equal(t, int(ferrors.CodeSessionUnknown), resp.Error.Code)
}

func TestSuccessResponseHasNoError(t *testing.T) {
	resp, err := NewResponse(EventState, "req-3", map[string]any{"ok": true})
	require.NoError(t, err)
	require.True(t, resp.Succeeded())
}

func TestDecodeParameterMissing(t *testing.T) {
	ev := Event{Event: EventLeave, UUID: "req-4"}
	var p LeaveParam
	require.Error(t, DecodeParameter(ev, &p))
}
