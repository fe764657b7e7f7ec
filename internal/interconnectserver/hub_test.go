package interconnectserver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mcfabric/mcfabric/pkg/loop"
)

// fakeLoop is an in-memory loop.Loop double, mirroring pkg/mixer's test
// double for the same interface.
type fakeLoop struct {
	name   string
	ssrc   uint32
	frames chan loop.Frame
	sent   chan []byte
}

func newFakeLoop(name string, ssrc uint32) *fakeLoop {
	return &fakeLoop{name: name, ssrc: ssrc, frames: make(chan loop.Frame, 16), sent: make(chan []byte, 16)}
}

func (f *fakeLoop) Name() string      { return f.name }
func (f *fakeLoop) LocalSSRC() uint32 { return f.ssrc }
func (f *fakeLoop) Send(buf []byte) (int, error) {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	f.sent <- cp
	return len(buf), nil
}
func (f *fakeLoop) Frames() <-chan loop.Frame { return f.frames }
func (f *fakeLoop) Close() error              { close(f.frames); return nil }

func (f *fakeLoop) push(payload []byte) {
	f.frames <- loop.Frame{LoopName: f.name, Payload: payload}
}

func TestLoopHubFansOutToEverySubscriber(t *testing.T) {
	l := newFakeLoop("loopA", 7)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := newLoopHub(ctx, l)

	gotA := make(chan []byte, 1)
	gotB := make(chan []byte, 1)
	hub.subscribe("peerA", func(payload []byte) { gotA <- payload })
	hub.subscribe("peerB", func(payload []byte) { gotB <- payload })

	l.push([]byte("hello"))

	select {
	case p := <-gotA:
		require.Equal(t, "hello", string(p))
	case <-time.After(time.Second):
		t.Fatal("peerA never received the frame")
	}
	select {
	case p := <-gotB:
		require.Equal(t, "hello", string(p))
	case <-time.After(time.Second):
		t.Fatal("peerB never received the frame")
	}
}

func TestLoopHubUnsubscribeStopsDelivery(t *testing.T) {
	l := newFakeLoop("loopB", 9)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := newLoopHub(ctx, l)

	got := make(chan []byte, 2)
	hub.subscribe("peerA", func(payload []byte) { got <- payload })
	hub.unsubscribe("peerA")

	l.push([]byte("frame1"))

	select {
	case <-got:
		t.Fatal("unsubscribed peer should not receive frames")
	case <-time.After(100 * time.Millisecond):
	}
}
