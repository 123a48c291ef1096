package task

import (
	"runtime"
	"sync"
)

// pool is a fixed set of worker goroutines draining a buffered queue.
type pool struct {
	jobs   chan func()
	wg     sync.WaitGroup
	mu     sync.RWMutex // guards closed against concurrent submit
	closed bool
}

func newPool(workers, queueSize int) *pool {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	if queueSize < 1 {
		queueSize = workers * 4
	}
	p := &pool{jobs: make(chan func(), queueSize)}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *pool) worker() {
	defer p.wg.Done()
	for fn := range p.jobs {
		fn()
	}
}

// submit never blocks: when the queue is full the work gets its own goroutine.
func (p *pool) submit(fn func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrSchedulerClosed
	}
	select {
	case p.jobs <- fn:
	default:
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			fn()
		}()
	}
	return nil
}

// stop drains queued work and waits for every worker to exit.
func (p *pool) stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}
