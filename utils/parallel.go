package utils

import (
	"runtime"
	"sync"

	goutils "go.viam.com/utils"
)

// ParallelFactor controls the max level of parallelization. Tests may lower it when too much
// parallelism slows them down in aggregate.
var ParallelFactor = runtime.GOMAXPROCS(0)

func init() {
	if ParallelFactor <= 0 {
		ParallelFactor = 1
	}
}

// ParallelForEachRow splits the rows [0, height) into contiguous bands, one per worker, and
// calls f for every row. It returns once every row is done. Each row is visited exactly once,
// so f may write to row-local output without locking.
func ParallelForEachRow(height int, f func(y int)) {
	if height <= 0 {
		return
	}
	workers := ParallelFactor
	if workers > height {
		workers = height
	}
	band := height / workers
	extra := height % workers

	var wait sync.WaitGroup
	wait.Add(workers)
	from := 0
	for i := 0; i < workers; i++ {
		to := from + band
		if i < extra {
			to++
		}
		start, end := from, to
		goutils.PanicCapturingGo(func() {
			defer wait.Done()
			for y := start; y < end; y++ {
				f(y)
			}
		})
		from = to
	}
	wait.Wait()
}
