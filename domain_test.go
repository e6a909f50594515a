package mainmemory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/mainmemory/mainmemory-go/internal/fiber"
	"github.com/mainmemory/mainmemory-go/internal/poller"
)

func TestDomain_StartSpawnStop(t *testing.T) {
	d, err := NewDomain(DomainConfig{Workers: 2})
	require.NoError(t, err)
	require.NoError(t, d.Start())

	done := make(chan struct{})
	ctx := d.Contexts()[0]
	ctx.Spawn(fiber.Attr{}, func(any) any {
		close(done)
		return nil
	}, nil)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("spawned fiber never ran")
	}

	require.NoError(t, d.Stop())
	require.ErrorIs(t, d.Stop(), ErrDomainNotStarted)
}

func TestDomain_StartTwiceFails(t *testing.T) {
	d, err := NewDomain(DomainConfig{Workers: 1})
	require.NoError(t, err)
	require.NoError(t, d.Start())
	defer d.Stop()

	require.ErrorIs(t, d.Start(), ErrDomainAlreadyStarted)
}

func TestDomain_PostCrossContext(t *testing.T) {
	d, err := NewDomain(DomainConfig{Workers: 2})
	require.NoError(t, err)
	require.NoError(t, d.Start())
	defer d.Stop()

	target := d.Contexts()[1]
	done := make(chan struct{})
	target.Post(func([5]uintptr) { close(done) }, [5]uintptr{})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("posted async call never ran on target context")
	}
}

// TestDomain_ForwardsReadyEventsToFixedOwner is spec §8 scenario 5: a
// sink fixed to one context is polled by another listener's poller; the
// polling context must forward rather than directly deliver, and the
// fixed owner must be the one to actually run the handler.
func TestDomain_ForwardsReadyEventsToFixedOwner(t *testing.T) {
	d, err := NewDomain(DomainConfig{Workers: 2})
	require.NoError(t, err)
	require.NoError(t, d.Start())
	defer d.Stop()

	pollingCtx := d.Contexts()[0]
	fixedOwner := d.Contexts()[1]

	var fds [2]int
	require.NoError(t, unix.Pipe2(fds[:], unix.O_NONBLOCK))
	r, w := fds[0], fds[1]
	defer unix.Close(w)

	delivered := make(chan struct{})
	sink, err := pollingCtx.RegisterFD(r, poller.Read, func(poller.Events) { close(delivered) }, nil)
	require.NoError(t, err)
	defer pollingCtx.UnregisterFD(r)

	// Pin the sink to fixedOwner while it stays registered with
	// pollingCtx's poller, reproducing "a sink fixed to one context,
	// polled by another" without waiting for the rebinding path to do it.
	sink.owner.Store(fixedOwner)
	sink.setFlag(FlagFixedPoller)

	_, err = unix.Write(w, []byte("x"))
	require.NoError(t, err)

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("forwarded event was never delivered by its fixed owner")
	}

	require.GreaterOrEqual(t, pollingCtx.Stats().ForwardedEvents, uint64(1))
	require.Equal(t, uint64(0), pollingCtx.Stats().DirectEvents)
}
