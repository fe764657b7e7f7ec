package callback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mcfabric/mcfabric/pkg/signaling"
)

func TestResolveInvokesHandlerOnce(t *testing.T) {
	r := New(context.Background(), time.Hour)
	defer r.Stop()

	called := make(chan bool, 1)
	r.Register("req-1", func(resp signaling.Event, timedOut bool) {
		called <- timedOut
	})
	require.Equal(t, 1, r.Pending())

	ok := r.Resolve(signaling.Event{UUID: "req-1", Event: signaling.EventAcquire})
	require.True(t, ok)
	require.Equal(t, 0, r.Pending())

	select {
	case timedOut := <-called:
		require.False(t, timedOut)
	case <-time.After(time.Second):
		t.Fatal("handler not invoked")
	}
}

func TestResolveUnknownUUIDReturnsFalse(t *testing.T) {
	r := New(context.Background(), time.Hour)
	defer r.Stop()
	require.False(t, r.Resolve(signaling.Event{UUID: "nope"}))
}

func TestDeadlineSweepNotifiesTimeout(t *testing.T) {
	r := New(context.Background(), 10*time.Millisecond)
	defer r.Stop()

	called := make(chan bool, 1)
	r.RegisterWithDeadline("req-2", func(resp signaling.Event, timedOut bool) {
		called <- timedOut
	}, time.Now().Add(5*time.Millisecond))

	select {
	case timedOut := <-called:
		require.True(t, timedOut)
	case <-time.After(time.Second):
		t.Fatal("deadline sweep did not fire")
	}
	require.Equal(t, 0, r.Pending())
}
