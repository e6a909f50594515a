package waitset

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUnique_SignalBeforeWait(t *testing.T) {
	var u Unique
	u.Signal()
	require.True(t, u.Signaled())

	woke := false
	u.Wait(func() { woke = true })
	require.True(t, woke)
	require.False(t, u.Signaled())
}

func TestUnique_WaitBeforeSignal(t *testing.T) {
	var u Unique
	woke := make(chan struct{})
	u.Wait(func() { close(woke) })

	select {
	case <-woke:
		t.Fatal("wake fired before Signal")
	case <-time.After(10 * time.Millisecond):
	}

	u.Signal()
	select {
	case <-woke:
	case <-time.After(2 * time.Second):
		t.Fatal("Signal never woke the waiter")
	}
}

// TestUnique_ConcurrentRace races Wait against Signal from opposite
// goroutines across many rounds, re-using the same Unique each round (its
// one-shot state resets once consumed), to catch a missed or doubled
// wakeup under the race detector. Each round waits for both sides to
// finish before starting the next, since Unique only supports one
// outstanding wait/signal pair at a time.
func TestUnique_ConcurrentRace(t *testing.T) {
	var u Unique
	const rounds = 5_000

	for i := 0; i < rounds; i++ {
		var wg sync.WaitGroup
		wg.Add(2)
		woke := make(chan struct{})

		go func() {
			defer wg.Done()
			u.Wait(func() { close(woke) })
		}()
		go func() {
			defer wg.Done()
			u.Signal()
		}()
		wg.Wait()

		select {
		case <-woke:
		case <-time.After(2 * time.Second):
			t.Fatalf("round %d: Signal never woke the waiter", i)
		}
	}
}
