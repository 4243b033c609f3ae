package worker

import (
	"log/slog"
	"sync"

	"github.com/baharkarakas/xp-ledger/internal/metrics"
)

type task func()

const defaultQueue = 1024

// Pool runs informational side writes off the request path.
type Pool struct {
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	jobs   chan task
}

func NewPool(n int) *Pool { return NewPoolWithQueue(n, defaultQueue) }

func NewPoolWithQueue(n, size int) *Pool {
	if n <= 0 {
		n = 1
	}
	if size < 0 {
		size = 0
	}
	p := &Pool{jobs: make(chan task, size)}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				metrics.WorkerQueueDepth.Dec()
				run(job)
			}
		}()
	}
	return p
}

func run(job task) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("worker job panic", "err", rec)
		}
	}()
	job()
}

// Submit queues f without blocking. It returns false when the queue is full
// or the pool is stopped; the caller then decides whether to run f itself.
func (p *Pool) Submit(f task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	metrics.WorkerQueueDepth.Inc()
	select {
	case p.jobs <- f:
		return true
	default:
		metrics.WorkerQueueDepth.Dec()
		return false
	}
}

// Stop drains queued jobs and waits for the workers to exit. Calling it
// again is a no-op.
func (p *Pool) Stop() {
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
