package image

import (
	"runtime"
	"sync"
)

// forEachBand splits [0, height) into one contiguous band of rows per worker
// and calls fn for each band concurrently. fn must only write to its own rows.
func forEachBand(height int, fn func(startY int, endY int)) {
	// Use GOMAXPROCS instead of runtime.NumCPU() to consider cgroup.
	// https://tip.golang.org/doc/go1.25#container-aware-gomaxprocs
	numWorkers := min(runtime.GOMAXPROCS(0), max(1, height))

	rowsPerWorker := height / numWorkers

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		startY := i * rowsPerWorker
		endY := startY + rowsPerWorker
		if i == numWorkers-1 {
			endY = height
		}

		go func(startY int, endY int) {
			defer wg.Done()
			fn(startY, endY)
		}(startY, endY)
	}
	wg.Wait()
}
