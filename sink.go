package mainmemory

import (
	"sync/atomic"

	"github.com/mainmemory/mainmemory-go/internal/poller"
	"github.com/mainmemory/mainmemory-go/internal/waitset"
)

// SinkFlags mirrors spec §3 "Event sink" flag set.
type SinkFlags uint32

const (
	FlagInputReady SinkFlags = 1 << iota
	FlagOutputReady
	FlagOneshotInput
	FlagOneshotOutput
	FlagInputStarted
	FlagOutputStarted
	FlagNotifyFD
	FlagFixedPoller
	FlagBroken
)

// Sink represents a file descriptor registered with a Dispatch, per spec
// §3 "Event sink." Ownership (the owning Context) may be reassigned only
// while the sink is idle and FlagFixedPoller is clear (spec §4.5 "Sink
// rebinding").
type Sink struct {
	fd int

	owner atomic.Pointer[Context] // nil once detached

	pollStamp atomic.Uint64
	taskStamp atomic.Uint64
	flags     atomic.Uint32

	onInput  func(poller.Events)
	onOutput func(poller.Events)

	// inputWaiter/outputWaiter, when non-nil, are the Unique wait-sets a
	// fiber registered via Context.WaitFD; deliver signals whichever is
	// set instead of invoking the legacy onInput/onOutput reactor
	// callbacks for that direction, per spec §3's "optional input/output
	// blocked-on pointers." inputEvents/outputEvents carry the observed
	// event mask across to the woken fiber.
	inputWaiter, outputWaiter atomic.Pointer[waitset.Unique]
	inputEvents, outputEvents poller.Events

	retireNext *Sink // reclamation-list link, owned by the retiring context
}

// NewSink constructs a sink for fd with the given ready-event callbacks;
// either may be nil. The sink starts owned by owner.
func NewSink(owner *Context, fd int, onInput, onOutput func(poller.Events)) *Sink {
	s := &Sink{fd: fd, onInput: onInput, onOutput: onOutput}
	s.owner.Store(owner)
	return s
}

// FD returns the sink's underlying file descriptor.
func (s *Sink) FD() int { return s.fd }

// Owner returns the context that currently owns this sink, or nil if
// detached.
func (s *Sink) Owner() *Context { return s.owner.Load() }

// Active reports whether the sink has an event pending delivery or a
// started task, per spec §3: "sink is active iff poll_stamp != task_stamp
// OR an *-STARTED flag is set."
func (s *Sink) Active() bool {
	if s.pollStamp.Load() != s.taskStamp.Load() {
		return true
	}
	f := SinkFlags(s.flags.Load())
	return f&(FlagInputStarted|FlagOutputStarted) != 0
}

func (s *Sink) flag(f SinkFlags) bool { return SinkFlags(s.flags.Load())&f != 0 }

func (s *Sink) setFlag(f SinkFlags) { s.flags.Or(uint32(f)) }

func (s *Sink) clearFlag(f SinkFlags) { s.flags.And(^uint32(f)) }

// deliver runs the registered callback(s) for ev and bumps both stamps,
// per spec §4.5 step 4 "direct delivery: update sink stamps and flags,
// start the relevant task." A direction with a fiber parked on it via
// Context.WaitFD wakes that fiber instead of invoking the reactor-style
// onInput/onOutput callback for that direction; the two models are never
// mixed on the same direction of the same sink.
func (s *Sink) deliver(ev poller.Events) {
	s.pollStamp.Add(1)
	if ev&(poller.Read|poller.Hangup|poller.Error) != 0 {
		if w := s.inputWaiter.Swap(nil); w != nil {
			s.inputEvents = ev
			w.Signal()
		} else if s.onInput != nil {
			s.onInput(ev)
		}
	}
	if ev&poller.Write != 0 {
		if w := s.outputWaiter.Swap(nil); w != nil {
			s.outputEvents = ev
			w.Signal()
		} else if s.onOutput != nil {
			s.onOutput(ev)
		}
	}
	s.taskStamp.Add(1)
}
