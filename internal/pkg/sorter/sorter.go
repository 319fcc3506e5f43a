// Package sorter sorts descriptor arrays by key ascending using a
// task-parallel quicksort on a fixed-size pool. The sort is not stable:
// records with equal keys may end up in any relative order.
package sorter

import (
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/SalimTag/SPM-Distributed-MergeSort/internal/pkg/record"
)

const (
	// sequentialCutoff is the partition size below which a subrange is
	// handed to the standard library sort instead of recursing further.
	sequentialCutoff = 10000

	// parallelMin is the array size below which the sort runs entirely
	// sequentially.
	parallelMin = 1000
)

// Sorter owns a pool of at most threads concurrent sorting tasks. The pool
// lives for the lifetime of the Sorter and is shared by all Sort calls.
type Sorter struct {
	threads int64
	tasks   *semaphore.Weighted
}

// New creates a sorter with a task pool of the given size. A size below 1 is
// treated as 1.
func New(threads int) *Sorter {
	if threads < 1 {
		threads = 1
	}
	return &Sorter{
		threads: int64(threads),
		tasks:   semaphore.NewWeighted(int64(threads)),
	}
}

// Threads returns the pool size the sorter was constructed with.
func (s *Sorter) Threads() int {
	return int(s.threads)
}

// Sort orders descs by key ascending.
func (s *Sorter) Sort(descs []record.Descriptor) {
	if len(descs) < parallelMin || s.threads == 1 {
		sortSequential(descs)
		return
	}
	s.quicksort(descs)
}

// quicksort partitions around the last element's key and recurses on the two
// halves. A half larger than the cutoff is handed to the pool when a slot is
// free; otherwise it is sorted on the current goroutine, so progress never
// waits on pool capacity.
func (s *Sorter) quicksort(descs []record.Descriptor) {
	if len(descs) <= sequentialCutoff {
		sortSequential(descs)
		return
	}
	p := partition(descs)
	var wg sync.WaitGroup
	for _, half := range [2][]record.Descriptor{descs[:p], descs[p+1:]} {
		if len(half) > sequentialCutoff && s.tasks.TryAcquire(1) {
			wg.Add(1)
			go func(part []record.Descriptor) {
				defer wg.Done()
				defer s.tasks.Release(1)
				s.quicksort(part)
			}(half)
		} else {
			s.quicksort(half)
		}
	}
	wg.Wait()
}

func partition(descs []record.Descriptor) int {
	pivot := descs[len(descs)-1].Key
	i := 0
	for j := 0; j < len(descs)-1; j++ {
		if descs[j].Key < pivot {
			descs[i], descs[j] = descs[j], descs[i]
			i++
		}
	}
	descs[i], descs[len(descs)-1] = descs[len(descs)-1], descs[i]
	return i
}

func sortSequential(descs []record.Descriptor) {
	sort.Slice(descs, func(i, j int) bool {
		return descs[i].Key < descs[j].Key
	})
}
