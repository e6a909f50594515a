// Package arena implements the pluggable memory allocator collaborator
// from spec §6 "Memory arena": two concrete variants, private (single
// context, no lock) and common (process-wide, guarded by a lock), each
// backed by size-bucketed sync.Pool instances — grounded in the teacher's
// chunkPool (eventloop/ingress.go: "sync.Pool chunk recycling prevents GC
// thrashing under high throughput").
//
// The spec's full C allocator surface — alloc/calloc/realloc/free/
// aligned_alloc/bulk_free/trim — collapses in Go to Alloc/Free/BulkFree:
// calloc is make()'s own zeroing, realloc and aligned_alloc have no
// idiomatic Go analogue worth keeping (callers append() or re-Alloc), and
// trim (returning pool memory to the OS) is Go's garbage collector's job,
// not the arena's. See DESIGN.md.
package arena

import "sync"

// Arena is the abstract allocator the core references, per spec §6:
// "The core references only the abstract arena."
type Arena interface {
	Alloc(size int) []byte
	Free(buf []byte)
	BulkFree(bufs [][]byte)
}

const bucketUnit = 64

func bucketSize(size int) int {
	return ((size + bucketUnit - 1) / bucketUnit) * bucketUnit
}

// sizePool buckets allocations into fixed-size classes, one sync.Pool per
// bucket, matching the teacher's single-shape chunkPool generalized to an
// arbitrary number of size classes.
type sizePool struct {
	pools sync.Map // map[int]*sync.Pool
}

func (p *sizePool) pool(bucket int) *sync.Pool {
	if v, ok := p.pools.Load(bucket); ok {
		return v.(*sync.Pool)
	}
	v, _ := p.pools.LoadOrStore(bucket, &sync.Pool{
		New: func() any { return make([]byte, bucket) },
	})
	return v.(*sync.Pool)
}

func (p *sizePool) get(size int) []byte {
	bucket := bucketSize(size)
	buf := p.pool(bucket).Get().([]byte)
	return buf[:size]
}

func (p *sizePool) put(buf []byte) {
	bucket := cap(buf)
	p.pool(bucket).Put(buf[:bucket])
}
