package fitter

import (
	"sync"

	"github.com/quakelab/etasfit/pkg/metrics"
)

// Pool is a free list of reusable cache handles. A handle is owned by one
// goroutine between Acquire and Release and is rebuilt in place by its owner.
//
//	h := pool.Acquire()
//	defer pool.Release(h)
type Pool[T any] struct {
	name  string
	newFn func() T

	mu   sync.Mutex
	free []T

	created int
	reused  int
}

func NewPool[T any](name string, newFn func() T) *Pool[T] {
	return &Pool[T]{name: name, newFn: newFn}
}

func (p *Pool[T]) Acquire() T {
	p.mu.Lock()
	if n := len(p.free); n > 0 {
		h := p.free[n-1]
		var zero T
		p.free[n-1] = zero
		p.free = p.free[:n-1]
		p.reused++
		p.mu.Unlock()

		metrics.PoolAcquireMetrics.WithLabelValues(p.name, "reused").Inc()
		return h
	}
	p.created++
	p.mu.Unlock()

	metrics.PoolAcquireMetrics.WithLabelValues(p.name, "new").Inc()
	return p.newFn()
}

func (p *Pool[T]) Release(h T) {
	p.mu.Lock()
	p.free = append(p.free, h)
	p.mu.Unlock()
}

// Stats returns how many handles were allocated and how many checkouts
// reused a free handle.
func (p *Pool[T]) Stats() (created, reused int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created, p.reused
}
