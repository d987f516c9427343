package systems

import (
	"runtime"
	"sync"

	"github.com/pthm-cable/plantfate/components"
)

// parallelThreshold is the minimum cohort count to use parallel processing.
// Below this, single-threaded is faster due to goroutine overhead.
const parallelThreshold = 256

// cohortRef points at one cohort's components for the duration of an update.
// The pointers stay valid as long as no cohort is added or removed.
type cohortRef struct {
	plant *components.Plant
	rates *components.Rates
}

// workPool splits an index range across goroutines.
type workPool struct {
	numWorkers int
	wg         sync.WaitGroup
}

func newWorkPool() *workPool {
	return &workPool{numWorkers: runtime.GOMAXPROCS(0)}
}

// run calls fn on contiguous chunks covering [0, n). Chunks never overlap,
// so fn may write to per-index results without locking.
func (p *workPool) run(n int, fn func(start, end int)) {
	if n < parallelThreshold || p.numWorkers < 2 {
		fn(0, n)
		return
	}
	chunk := (n + p.numWorkers - 1) / p.numWorkers
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			fn(start, end)
		}()
	}
	p.wg.Wait()
}
