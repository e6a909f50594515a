// Package fiber implements the cooperative fiber scheduler from spec §4.3
// and §4.4: a priority-binned runqueue, fiber lifecycle (create/run/hoist/
// yield/block/pause/exit/cancel), and the strand that drives the fiber
// switch loop.
//
// Go provides no portable ucontext-style register save/restore, so "stack
// switching" (spec §4.3) is re-expressed as a baton handoff: each fiber owns
// a dedicated goroutine parked on an unbuffered resume channel, and the
// owning strand's single driver goroutine hands the baton to exactly one
// fiber at a time, waiting on a shared control channel for that fiber to
// yield, block, pause, or exit before picking the next one. This preserves
// spec §5's "fibers never run on two threads at once" and "at most one
// ready fiber runs at a time per strand" invariants without hand-written
// assembly; see DESIGN.md for the full rationale.
package fiber
