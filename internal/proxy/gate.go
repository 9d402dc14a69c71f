package proxy

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Gate bounds in-flight proxy calls and, optionally, their dispatch rate.
type Gate struct {
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	size    int64
}

// NewGate creates a gate. concurrent=false yields a gate of size one.
func NewGate(concurrent bool, maxConcurrent int, rps float64) *Gate {
	size := int64(1)
	if concurrent && maxConcurrent > 1 {
		size = int64(maxConcurrent)
	}

	g := &Gate{sem: semaphore.NewWeighted(size), size: size}
	if rps > 0 {
		burst := max(int(rps), 1)
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return g
}

// Acquire blocks until a slot is free. The returned func releases it.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			g.sem.Release(1)
			return nil, err
		}
	}
	return func() { g.sem.Release(1) }, nil
}

// Size returns the maximum number of concurrent calls.
func (g *Gate) Size() int64 {
	return g.size
}
