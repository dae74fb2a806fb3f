package obkv

import "sync"

// workerPool is a small fixed-size goroutine pool used to run
// asynchronous connection logins without blocking the caller (spec.md
// §4.2 "process-wide thread pool of size conn_init_thread_num").
type workerPool struct {
	jobs chan func()
	wg   sync.WaitGroup
}

func newWorkerPool(size int) *workerPool {
	if size < 1 {
		size = 1
	}
	p := &workerPool{jobs: make(chan func(), size*4)}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				job()
			}
		}()
	}
	return p
}

// submit enqueues job to run on the pool. It blocks if the queue is
// full, providing natural backpressure on login storms.
func (p *workerPool) submit(job func()) {
	p.jobs <- job
}

func (p *workerPool) close() {
	close(p.jobs)
	p.wg.Wait()
}
