package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mcfabric/mcfabric/pkg/ferrors"
)

func TestRegisterAcquireReleaseRoundtrip(t *testing.T) {
	r := New(8)

	require.NoError(t, r.RegisterMixer(3, "uuid-1", "127.0.0.1:9000"))
	live, bound := r.Count()
	require.Equal(t, 1, live)
	require.Equal(t, 0, bound)

	socket, err := r.Acquire("s-1")
	require.NoError(t, err)
	require.Equal(t, 3, socket)

	live, bound = r.Count()
	require.Equal(t, 1, live)
	require.Equal(t, 1, bound)

	slot, ok := r.GetBySession("s-1")
	require.True(t, ok)
	require.Equal(t, 3, slot.Socket)

	require.NoError(t, r.Release("s-1"))
	live, bound = r.Count()
	require.Equal(t, 1, live)
	require.Equal(t, 0, bound)
}

func TestAcquireIdempotent(t *testing.T) {
	r := New(8)
	require.NoError(t, r.RegisterMixer(1, "u", ""))

	s1, err := r.Acquire("s-1")
	require.NoError(t, err)
	s2, err := r.Acquire("s-1")
	require.NoError(t, err)
	require.Equal(t, s1, s2)
}

func TestAcquireNoFreeSlot(t *testing.T) {
	r := New(8)
	_, err := r.Acquire("s-1")
	require.Error(t, err)
	var fe *ferrors.Error
	require.ErrorAs(t, err, &fe)
	require.Equal(t, ferrors.CodeResourceNoFreeSlot, fe.Code)
}

func TestUnregisterSurfacesLostSession(t *testing.T) {
	r := New(8)
	require.NoError(t, r.RegisterMixer(2, "u", ""))
	_, err := r.Acquire("s-1")
	require.NoError(t, err)

	lost, ok := r.UnregisterMixer(2)
	require.True(t, ok)
	require.Equal(t, "s-1", lost)

	_, ok = r.GetBySession("s-1")
	require.False(t, ok)
}

func TestRegisterOutOfRange(t *testing.T) {
	r := New(4)
	err := r.RegisterMixer(10, "u", "")
	require.Error(t, err)
}

func TestRegisterAlreadyLive(t *testing.T) {
	r := New(4)
	require.NoError(t, r.RegisterMixer(1, "u", ""))
	err := r.RegisterMixer(1, "u2", "")
	require.Error(t, err)
}

func TestSlotInvariantGetBySessionPointsBack(t *testing.T) {
	// P3: for all session ids S in the registry, get_by_session(S) points
	// back to a slot whose assigned_session == S.
	r := New(16)
	for i := 0; i < 5; i++ {
		require.NoError(t, r.RegisterMixer(i, "u", ""))
	}
	for i := 0; i < 5; i++ {
		sessID := "s-" + string(rune('a'+i))
		_, err := r.Acquire(sessID)
		require.NoError(t, err)
		slot, ok := r.GetBySession(sessID)
		require.True(t, ok)
		require.Equal(t, sessID, slot.SessionID)
	}
}
