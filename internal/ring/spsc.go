package ring

import "sync/atomic"

type spscSlot[T any] struct {
	stamp atomic.Uint64
	value T
}

// SPSC is a fixed-capacity, power-of-two, single-producer/single-consumer
// bounded ring buffer, per spec §3 "SPSC ring": same stamped-slot layout as
// MPMC, but the head/tail indices are owned exclusively by one producer and
// one consumer goroutine respectively, so plain loads/stores with
// release/acquire semantics on the stamp suffice — no fetch-add is needed.
//
// Used for a private arena's cross-context free queue (spec §6 "Memory
// arena": "a private arena also owns a SPSC reclaim queue so peer contexts
// can hand back memory for the owner to free").
type SPSC[T any] struct {
	head uint64 // consumer-owned
	_    [7]uint64
	tail uint64 // producer-owned
	_    [7]uint64

	mask  uint64
	slots []spscSlot[T]
}

// NewSPSC creates a ring of the given capacity, rounded up to a power of two.
func NewSPSC[T any](capacity int) *SPSC[T] {
	n := nextPow2(capacity)
	r := &SPSC[T]{
		mask:  uint64(n - 1),
		slots: make([]spscSlot[T], n),
	}
	for i := range r.slots {
		r.slots[i].stamp.Store(uint64(i))
	}
	return r
}

// TryEnqueue is called only by the single designated producer.
func (r *SPSC[T]) TryEnqueue(v T) error {
	t := r.tail
	slot := &r.slots[t&r.mask]
	if slot.stamp.Load() != t {
		return ErrFull
	}
	slot.value = v
	slot.stamp.Store(t + 1)
	r.tail = t + 1
	return nil
}

// Enqueue blocks (spinning with backoff) until the next slot is free.
func (r *SPSC[T]) Enqueue(v T) {
	var bo Backoff
	for {
		if err := r.TryEnqueue(v); err == nil {
			return
		}
		bo.Spin()
	}
}

// TryDequeue is called only by the single designated consumer.
func (r *SPSC[T]) TryDequeue() (T, error) {
	h := r.head
	slot := &r.slots[h&r.mask]
	if slot.stamp.Load() != h+1 {
		var zero T
		return zero, ErrEmpty
	}
	v := slot.value
	var zero T
	slot.value = zero
	slot.stamp.Store(h + r.mask + 1)
	r.head = h + 1
	return v, nil
}

// Dequeue blocks (spinning with backoff) until a payload is available.
func (r *SPSC[T]) Dequeue() T {
	var bo Backoff
	for {
		v, err := r.TryDequeue()
		if err == nil {
			return v
		}
		bo.Spin()
	}
}
