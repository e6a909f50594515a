package ring

import (
	"errors"
	"sync/atomic"
)

// ErrFull is returned by TryEnqueue when the ring has no free slot.
var ErrFull = errors.New("ring: full")

// ErrEmpty is returned by TryDequeue when the ring has no populated slot.
var ErrEmpty = errors.New("ring: empty")

type mpmcSlot[T any] struct {
	stamp atomic.Uint64
	value T
}

// MPMC is a fixed-capacity, power-of-two, multi-producer/multi-consumer
// bounded ring buffer, per spec §3 "MPMC ring" / §4.1.
//
// Producers claim a slot via fetch-add on tail and spin until the slot's
// stamp equals the claimed ticket; consumers claim via fetch-add on head and
// spin until the slot's stamp equals ticket+1. This is the classic Vyukov
// bounded MPMC layout: wait-free absent contention, lock-free under it.
type MPMC[T any] struct {
	head atomic.Uint64
	_    [7]uint64 // pad to keep head and tail off the same cache line
	tail atomic.Uint64
	_    [7]uint64

	mask  uint64
	slots []mpmcSlot[T]
}

// NewMPMC creates a ring of the given capacity, rounded up to a power of
// two (minimum 2).
func NewMPMC[T any](capacity int) *MPMC[T] {
	n := nextPow2(capacity)
	r := &MPMC[T]{
		mask:  uint64(n - 1),
		slots: make([]mpmcSlot[T], n),
	}
	for i := range r.slots {
		r.slots[i].stamp.Store(uint64(i))
	}
	return r
}

func nextPow2(n int) int {
	if n < 2 {
		return 2
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Cap returns the ring's fixed capacity.
func (r *MPMC[T]) Cap() int { return len(r.slots) }

// TryEnqueue attempts a single non-blocking enqueue. Returns ErrFull if
// the ring is currently saturated.
func (r *MPMC[T]) TryEnqueue(v T) error {
	for {
		t := r.tail.Load()
		slot := &r.slots[t&r.mask]
		stamp := slot.stamp.Load()
		diff := int64(stamp) - int64(t)
		switch {
		case diff == 0:
			if r.tail.CompareAndSwap(t, t+1) {
				slot.value = v
				slot.stamp.Store(t + 1)
				return nil
			}
		case diff < 0:
			return ErrFull
		}
	}
}

// Enqueue blocks (spinning with backoff) until a slot becomes available.
func (r *MPMC[T]) Enqueue(v T) {
	var bo Backoff
	for {
		if err := r.TryEnqueue(v); err == nil {
			return
		}
		bo.Spin()
	}
}

// TryDequeue attempts a single non-blocking dequeue. Returns ErrEmpty if
// the ring currently has no completed slot.
func (r *MPMC[T]) TryDequeue() (T, error) {
	for {
		h := r.head.Load()
		slot := &r.slots[h&r.mask]
		stamp := slot.stamp.Load()
		diff := int64(stamp) - int64(h+1)
		switch {
		case diff == 0:
			if r.head.CompareAndSwap(h, h+1) {
				v := slot.value
				var zero T
				slot.value = zero
				slot.stamp.Store(h + r.mask + 1)
				return v, nil
			}
		case diff < 0:
			var zero T
			return zero, ErrEmpty
		}
	}
}

// Dequeue blocks (spinning with backoff) until a payload is available.
func (r *MPMC[T]) Dequeue() T {
	var bo Backoff
	for {
		v, err := r.TryDequeue()
		if err == nil {
			return v
		}
		bo.Spin()
	}
}

// Len returns a snapshot of the number of queued items; racy by
// construction, intended only for metrics/low-water-mark checks (spec §4.5
// "enqueue on the shared sink queue ... if the count exceeds a low-water
// mark").
func (r *MPMC[T]) Len() int {
	t := r.tail.Load()
	h := r.head.Load()
	if t < h {
		return 0
	}
	return int(t - h)
}
