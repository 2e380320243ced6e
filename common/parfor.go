package common

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// GetGrainSize returns a reasonable value to use as the grain of ParallelFor
// when processing nSamples rows.
func GetGrainSize(nSamples, minGrainSize, maxGrainSize int) int {
	procs := runtime.GOMAXPROCS(0)
	grainPerProc := nSamples / procs
	if grainPerProc < minGrainSize {
		return minGrainSize
	}
	if grainPerProc > maxGrainSize {
		return maxGrainSize
	}
	return grainPerProc
}

// ParallelFor computes the function f in parallel using chunks of the given size.
// It returns once every index in [0, n) has been processed.
func ParallelFor(n, grain int, f func(start, end int)) {
	if grain < 1 {
		grain = 1
	}
	P := runtime.GOMAXPROCS(0)
	if nChunks := (n + grain - 1) / grain; nChunks < P {
		P = nChunks
	}
	idx := uint64(0)
	var wg sync.WaitGroup
	wg.Add(P)
	for p := 0; p < P; p++ {
		go func() {
			defer wg.Done()
			for {
				start := int(atomic.AddUint64(&idx, uint64(grain))) - grain
				if start >= n {
					break
				}
				end := start + grain
				if end > n {
					end = n
				}
				f(start, end)
			}
		}()
	}
	wg.Wait()
}
