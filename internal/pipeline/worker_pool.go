package pipeline

import (
	"context"
	"sync"

	"autoapply/internal/domain"
)

type Task func(ctx context.Context) Result

// Result is what one task contributes to the run totals.
type Result struct {
	Stats domain.RunStats
	Err   error
}

type WorkerPool struct {
	workers int
	tasks   chan Task
	wg      sync.WaitGroup
}

func NewWorkerPool(workers, buffer int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if buffer < 0 {
		buffer = 0
	}
	return &WorkerPool{
		workers: workers,
		tasks:   make(chan Task, buffer),
	}
}

func (p *WorkerPool) Submit(t Task) {
	if p == nil || t == nil {
		return
	}
	p.tasks <- t
}

func (p *WorkerPool) Close() {
	if p == nil {
		return
	}
	close(p.tasks)
}

// Run starts the workers. Tasks already taken run to completion even if ctx
// ends; the rest are dropped. The result channel closes when all workers exit.
func (p *WorkerPool) Run(ctx context.Context) <-chan Result {
	out := make(chan Result, p.workers*4)

	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					// drain so Submit never blocks on an abandoned pool
					for range p.tasks {
					}
					return
				case t, ok := <-p.tasks:
					if !ok {
						return
					}
					out <- t(ctx)
				}
			}
		}()
	}

	go func() {
		p.wg.Wait()
		close(out)
	}()

	return out
}
