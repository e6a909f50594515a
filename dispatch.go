package mainmemory

import (
	"github.com/mainmemory/mainmemory-go/internal/combiner"
	"github.com/mainmemory/mainmemory-go/internal/epoch"
)

// Dispatch is the state shared by every context in a Domain, per spec §2:
// "a global epoch counter, a sink-ownership queue, and wake-up state."
//
// Design note: spec §2 describes the poll backend itself ("a single
// kqueue/epoll fd") as shared dispatch state too. This implementation
// instead gives each Context its own poller.Poller (see Context.poller) —
// epoll/kqueue's own thread-safety makes a single shared fd workable in C,
// but it would force every Context's Poll call to share one fixed-size
// event buffer, which cannot be made safe without a lock that defeats the
// point of per-thread polling. One poller per context keeps §4.5's
// ownership, forwarding, and rebinding semantics intact while avoiding
// that shared mutable buffer; see DESIGN.md.
type Dispatch struct {
	epoch *epoch.Global

	// detached is the shared detached-sink queue (spec §4.5 step 6),
	// mutated only through mutate: a Combiner rather than a bare mutex, so
	// a burst of concurrent enqueueDetached calls under contention amortize
	// to one executor doing all the appends instead of each goroutine
	// fighting over the same lock (spec §4.2's combiner serialization,
	// applied here to the one piece of Dispatch state actually shared and
	// mutated by more than one context).
	detached []*Sink
	mutate   *combiner.Combiner[func()]

	lowWaterMark int

	contexts []*Context
}

func newDispatch(lowWaterMark int) *Dispatch {
	d := &Dispatch{epoch: epoch.New(), lowWaterMark: lowWaterMark}
	d.mutate = combiner.New(func(fn func()) { fn() }, 64, 8)
	return d
}

// enqueueDetached appends sink to the shared detached-sink queue (spec
// §4.5 step 6: "enqueue on the shared sink queue"). If the queue has
// crossed the low-water mark, wakes one idle context's poller so it can
// help drain it.
func (d *Dispatch) enqueueDetached(sink *Sink) {
	var n int
	d.mutate.Execute(func() {
		d.detached = append(d.detached, sink)
		n = len(d.detached)
	}, true)

	if n >= d.lowWaterMark {
		d.wakeIdle()
	}
}

func (d *Dispatch) drainDetached() []*Sink {
	var out []*Sink
	d.mutate.Execute(func() {
		out = d.detached
		d.detached = nil
	}, true)
	return out
}

func (d *Dispatch) wakeIdle() {
	for _, c := range d.contexts {
		if c.idle.Load() {
			_ = c.poller.Wake()
			return
		}
	}
}
