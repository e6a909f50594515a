package fiber

import (
	"runtime"

	"github.com/mainmemory/mainmemory-go/internal/ring"
)

// init installs the fiber-aware yield hook the ring package's Backoff
// uses once its CPU-pause budget is spent, per spec §4.1 "then yields to
// another fiber if inside a fiber, else yields to the OS."
func init() {
	fn := func() {
		if f := Current(); f != nil {
			f.Yield()
			return
		}
		runtime.Gosched()
	}
	ring.FiberYield.Store(&fn)
}
