package arena

import "github.com/mainmemory/mainmemory-go/internal/ring"

// Private is a single-context arena: Alloc/Free/BulkFree assume only the
// owning context's fiber-scheduling thread calls them, so no explicit
// lock guards the pool itself (spec §6 "private (no lock)"). A bounded
// SPSC queue lets a peer context hand back a buffer it holds but cannot
// free locally, per spec §6: "a private arena also owns a SPSC reclaim
// queue so peer contexts can hand back memory for the owner to free."
type Private struct {
	local   sizePool
	reclaim *ring.SPSC[[]byte]
}

// NewPrivate constructs a private arena with a reclaim queue of the given
// capacity (rounded up to a power of two by the underlying ring).
func NewPrivate(reclaimCapacity int) *Private {
	return &Private{reclaim: ring.NewSPSC[[]byte](reclaimCapacity)}
}

func (a *Private) Alloc(size int) []byte { return a.local.get(size) }

func (a *Private) Free(buf []byte) { a.local.put(buf) }

func (a *Private) BulkFree(bufs [][]byte) {
	for _, b := range bufs {
		a.local.put(b)
	}
}

// RemoteFree enqueues buf for the owning context to reclaim; called by a
// peer context holding a buffer it received from this arena's owner (e.g.
// a sink forwarded across contexts per spec §4.6). Blocks, with backoff,
// if the reclaim queue is momentarily full.
func (a *Private) RemoteFree(buf []byte) { a.reclaim.Enqueue(buf) }

// Reclaim drains every buffer queued via RemoteFree back into the local
// pool and returns the count freed. The owning context calls this once
// per poll cycle (spec §4.5 "Poll cycle").
func (a *Private) Reclaim() int {
	n := 0
	for {
		buf, err := a.reclaim.TryDequeue()
		if err != nil {
			return n
		}
		a.local.put(buf)
		n++
	}
}
