package mainmemory

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mainmemory/mainmemory-go/internal/poller"
)

func TestDispatch_EnqueueAndDrainDetached(t *testing.T) {
	d := newDispatch(10) // high water mark: avoid exercising wakeIdle here

	s1 := NewSink(nil, 1, nil, nil)
	s2 := NewSink(nil, 2, nil, nil)

	d.enqueueDetached(s1)
	d.enqueueDetached(s2)

	got := d.drainDetached()
	require.ElementsMatch(t, []*Sink{s1, s2}, got)
	require.Empty(t, d.drainDetached(), "a second drain on an empty queue returns nothing")
}

// fakePoller is a no-op poller.Poller used to observe Wake calls without
// touching any real OS descriptor.
type fakePoller struct {
	woken bool
}

func (f *fakePoller) Register(int, poller.Events, poller.Callback) error { return nil }
func (f *fakePoller) Modify(int, poller.Events) error                    { return nil }
func (f *fakePoller) Unregister(int) error                               { return nil }
func (f *fakePoller) Poll(int64) (int, error)                            { return 0, nil }
func (f *fakePoller) Wake() error                                        { f.woken = true; return nil }
func (f *fakePoller) Close() error                                       { return nil }

func TestDispatch_WakeIdleWakesOnlyAnIdleContext(t *testing.T) {
	d := newDispatch(1)

	busyPoller := &fakePoller{}
	idlePoller := &fakePoller{}
	busy := &Context{id: 0, poller: busyPoller}
	idle := &Context{id: 1, poller: idlePoller}
	idle.idle.Store(true)
	d.contexts = []*Context{busy, idle}

	d.wakeIdle()

	require.False(t, busyPoller.woken)
	require.True(t, idlePoller.woken)
}
