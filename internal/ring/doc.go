// Package ring implements the bounded lock-free ring buffers that carry
// async calls and forwarded events between contexts.
//
// Two shapes are provided: SPSC (single-producer/single-consumer, used for
// private-arena cross-context frees) and MPMC (multi-producer/multi-consumer,
// used for context inboxes and the dispatcher's sink-ownership queue). Both
// use the Vyukov bounded-queue layout: a fixed power-of-two slot array where
// each slot carries its own sequence stamp, so producers and consumers never
// contend on more than a single cache line at a time.
package ring
