// Package epoch implements the epoch-based reclamation scheme from spec
// §4.6: a monotonically increasing global epoch plus one local epoch slot
// per listener, used to safely defer freeing an event sink until every
// listener has quiesced past the epoch at which it was retired.
package epoch

import "sync"

// Global is the shared, monotonically increasing epoch counter plus the
// registry of local epoch slots needed to compute the minimum observed
// epoch across all listeners (spec §4.6 "advance: compute the minimum
// observed epoch across all listeners").
type Global struct {
	mu     sync.Mutex
	value  uint32
	locals []*Local
}

// New creates a fresh global epoch counter starting at 0.
func New() *Global {
	return &Global{}
}

// Load returns the current global epoch with acquire semantics.
func (g *Global) Load() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

func (g *Global) bump() uint32 {
	g.mu.Lock()
	g.value++
	v := g.value
	g.mu.Unlock()
	return v
}

// NewLocal registers and returns a new per-listener local epoch slot.
func (g *Global) NewLocal() *Local {
	l := &Local{global: g}
	g.mu.Lock()
	g.locals = append(g.locals, l)
	g.mu.Unlock()
	return l
}

// minActive returns the minimum epoch observed across every currently
// active local, or the current global epoch if none are active.
func (g *Global) minActive() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	min := g.value
	found := false
	for _, l := range g.locals {
		l.mu.Lock()
		if l.active {
			if !found || l.observed < min {
				min = l.observed
			}
			found = true
		}
		l.mu.Unlock()
	}
	return min
}

// retired is one sink on a local's retire list, tagged with the global
// epoch value observed when it was retired.
type retired[T any] struct {
	item  T
	epoch uint32
	next  *retired[T]
}

// Local is a single listener's local epoch slot plus its retire list,
// per spec §3 "Epoch": "one per-listener local epoch slot storing the
// epoch value observed when the listener last entered a critical
// section" and "a per-listener retire list."
//
// Not safe for concurrent use from multiple goroutines beyond Enter/Leave,
// which is how spec §5 scopes it: "owned exclusively by that listener's
// fiber context."
type Local struct {
	global   *Global
	mu       sync.Mutex
	observed uint32
	active   bool
}

// Enter publishes the current global epoch into this local, marking the
// listener active, per spec §4.6 "enter(local): publish current G into
// local; this makes the listener active."
func (l *Local) Enter() {
	v := l.global.Load()
	l.mu.Lock()
	l.observed = v
	l.active = true
	l.mu.Unlock()
}

// Active reports whether the local has been entered but not yet left.
func (l *Local) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Leave marks the local inactive, excluding it from future minActive
// computations until Enter is called again.
func (l *Local) Leave() {
	l.mu.Lock()
	l.active = false
	l.mu.Unlock()
}

// RetireList is a typed retire list attached to one Local slot. Kept
// separate from Local (rather than making Local itself generic) because a
// single listener retires exactly one concrete sink type in this runtime,
// but the split keeps epoch reclamation mechanics reusable for any future
// reclaimed type.
type RetireList[T any] struct {
	local *Local
	head  *retired[T]
	free  func(T)
	count int
}

// NewRetireList creates a retire list bound to local, calling free on each
// item once it is safe to reclaim.
func NewRetireList[T any](local *Local, free func(T)) *RetireList[T] {
	return &RetireList[T]{local: local, free: free}
}

// lowWaterMark triggers an eager Advance once the retire list grows past
// this size, per spec §4.6 "Advance trigger ... when its retire list
// crosses a small threshold."
const lowWaterMark = 64

// Retire appends item to the list, tagged with the current global epoch.
// Returns true if the caller should consider calling Advance immediately
// (retire list crossed the low-water mark).
func (r *RetireList[T]) Retire(item T) bool {
	r.head = &retired[T]{item: item, epoch: r.local.global.Load(), next: r.head}
	r.count++
	return r.count >= lowWaterMark
}

// Advance bumps the global epoch, computes the minimum epoch observed
// across every active local, and frees every retired item tagged at least
// two epochs behind that minimum, per spec §4.6 "advance(local, G): ...
// free every retired sink tagged with an epoch >= 2 behind that minimum;
// if any retires remain, leave listener active; else mark inactive."
func (r *RetireList[T]) Advance() {
	r.local.global.bump()
	min := r.local.global.minActive()

	var keep *retired[T]
	kept := 0
	for n := r.head; n != nil; {
		next := n.next
		if min >= n.epoch+2 {
			r.free(n.item)
		} else {
			n.next = keep
			keep = n
			kept++
		}
		n = next
	}
	r.head = keep
	r.count = kept

	if kept > 0 {
		r.local.mu.Lock()
		r.local.active = true
		r.local.mu.Unlock()
	} else {
		r.local.Leave()
	}
}

// Len reports the number of items currently awaiting reclamation.
func (r *RetireList[T]) Len() int { return r.count }
