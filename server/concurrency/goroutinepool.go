/******************************************************************************
 *
 *  Description :
 *    A small bounded pool of goroutines for running independent tasks.
 *
 *****************************************************************************/
package concurrency

import "sync"

// Task represents a work task to be run on the specified pool.
type Task func()

// GoRoutinePool runs tasks on at most a fixed number of goroutines.
type GoRoutinePool struct {
	// Work queue.
	work chan Task
	// Counter to control the number of already allocated/running goroutines.
	sem chan struct{}
	// Tracks tasks which were scheduled but did not finish yet.
	pending sync.WaitGroup
}

// NewGoRoutinePool allocates a new pool with up to `numWorkers` goroutines.
func NewGoRoutinePool(numWorkers int) *GoRoutinePool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return &GoRoutinePool{
		work: make(chan Task),
		sem:  make(chan struct{}, numWorkers),
	}
}

// Schedule enqueues a closure to run on the pool's goroutines. It blocks while
// all workers are busy.
func (p *GoRoutinePool) Schedule(task Task) {
	p.pending.Add(1)
	select {
	case p.work <- task:
	case p.sem <- struct{}{}:
		go p.worker(task)
	}
}

// Wait blocks until every scheduled task has completed. Idle workers exit.
func (p *GoRoutinePool) Wait() {
	p.pending.Wait()
}

// Pool worker goroutine. Exits when no new task arrives after finishing the current one.
func (p *GoRoutinePool) worker(task Task) {
	defer func() { <-p.sem }()
	for {
		task()
		p.pending.Done()
		select {
		case task = <-p.work:
		default:
			return
		}
	}
}
