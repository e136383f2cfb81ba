// Package pool provides the data-parallel worker pool used by the frame
// decoder. Stage executors run over ranges of independent group indices;
// the pool hands each worker a dense thread id usable as an index into
// per-thread scratch storage.
package pool

import (
	"runtime"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Pool schedules range-parallel work across a fixed set of workers.
type Pool struct {
	numWorkers int
}

// New creates a pool with n workers. n <= 0 selects GOMAXPROCS.
func New(n int) *Pool {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	return &Pool{numWorkers: n}
}

// NumWorkers reports the worker count.
func (p *Pool) NumWorkers() int {
	return p.numWorkers
}

// Run invokes body(i, thread) for every i in [begin, end). init, if non-nil,
// runs once with the number of threads before any body call; thread ids are
// dense in [0, numThreads).
//
// Errors are collected, not propagated: a failing body does not stop the
// other iterations. After the join barrier the first error is returned and
// the rest are logged at debug level under label.
func (p *Pool) Run(begin, end int, init func(numThreads int) error, body func(i, thread int) error, label string) error {
	n := end - begin
	if n <= 0 {
		if init != nil {
			return init(1)
		}
		return nil
	}

	// Sequential path for small ranges or a single-worker pool.
	if n <= 1 || p.numWorkers == 1 {
		if init != nil {
			if err := init(1); err != nil {
				return err
			}
		}
		var firstErr error
		for i := begin; i < end; i++ {
			if err := body(i, 0); err != nil {
				log.Debugf("%s: index %d failed: %v", label, i, err)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
		return firstErr
	}

	numWorkers := p.numWorkers
	if numWorkers > n {
		numWorkers = n
	}
	if init != nil {
		if err := init(numWorkers); err != nil {
			return err
		}
	}

	// Pre-fill the job channel before starting workers to reduce contention.
	jobs := make(chan int, n)
	for i := begin; i < end; i++ {
		jobs <- i
	}
	close(jobs)

	// One error slot per worker, joined at the barrier.
	workerErrs := make([]error, numWorkers)

	var wg sync.WaitGroup
	for t := 0; t < numWorkers; t++ {
		wg.Add(1)
		go func(thread int) {
			defer wg.Done()
			for i := range jobs {
				if err := body(i, thread); err != nil {
					log.Debugf("%s: index %d failed: %v", label, i, err)
					if workerErrs[thread] == nil {
						workerErrs[thread] = err
					}
				}
			}
		}(t)
	}
	wg.Wait()

	for _, err := range workerErrs {
		if err != nil {
			return err
		}
	}
	return nil
}
