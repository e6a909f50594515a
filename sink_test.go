package mainmemory

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mainmemory/mainmemory-go/internal/poller"
)

func TestSink_DeliverUpdatesStampsAndRunsCallbacks(t *testing.T) {
	var gotInput, gotOutput poller.Events
	s := NewSink(nil, 7, func(ev poller.Events) { gotInput = ev }, func(ev poller.Events) { gotOutput = ev })

	require.Equal(t, 7, s.FD())
	require.False(t, s.Active())

	s.deliver(poller.Read | poller.Write)

	require.Equal(t, poller.Read|poller.Write, gotInput)
	require.Equal(t, poller.Read|poller.Write, gotOutput)
	require.False(t, s.Active(), "poll and task stamps should match once delivery completes")
}

func TestSink_ActiveWhileTaskStarted(t *testing.T) {
	s := NewSink(nil, 1, nil, nil)
	s.setFlag(FlagInputStarted)
	require.True(t, s.Active())
	s.clearFlag(FlagInputStarted)
	require.False(t, s.Active())
}

func TestSink_OwnerReassignment(t *testing.T) {
	s := NewSink(nil, 1, nil, nil)
	require.Nil(t, s.Owner())

	c := &Context{id: 3}
	s.owner.Store(c)
	require.Same(t, c, s.Owner())
}
