//go:build linux || darwin

package poller

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPoller_RegisterAndFire(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	defer p.Close()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	fired := make(chan Events, 1)
	require.NoError(t, p.Register(int(r.Fd()), Read, func(ev Events) { fired <- ev }))

	_, err = w.Write([]byte("x"))
	require.NoError(t, err)

	n, err := p.Poll(time.Second.Microseconds())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	select {
	case ev := <-fired:
		require.NotZero(t, ev&Read)
	default:
		t.Fatal("callback was not invoked")
	}
}

func TestPoller_UnregisterStopsDelivery(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	defer p.Close()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	fd := int(r.Fd())
	require.NoError(t, p.Register(fd, Read, func(Events) {}))
	require.NoError(t, p.Unregister(fd))
	require.ErrorIs(t, p.Unregister(fd), ErrFDNotRegistered)
}

func TestPoller_WakeUnblocksPoll(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	defer p.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = p.Poll(-1)
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, p.Wake())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wake did not unblock a pending Poll")
	}
}
