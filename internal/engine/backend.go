package engine

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Backend executes the data-parallel loops inside kernels.
type Backend interface {
	Name() string
	// Setup prepares the backend before it becomes active.
	Setup(ctx context.Context) error
	// For calls fn over disjoint [lo, hi) chunks covering [0, n) and returns once
	// every chunk is done.
	For(n int, fn func(lo, hi int))
}

type cpuBackend struct{}

func (cpuBackend) Name() string { return "cpu" }

func (cpuBackend) Setup(ctx context.Context) error { return ctx.Err() }

func (cpuBackend) For(n int, fn func(lo, hi int)) {
	if n > 0 {
		fn(0, n)
	}
}

// parallelBackend splits loops across GOMAXPROCS goroutines.
type parallelBackend struct {
	workers int
}

// NewParallelBackend returns a backend named "parallel" with a fixed worker count.
// workers <= 0 means GOMAXPROCS.
func NewParallelBackend(workers int) Backend {
	return &parallelBackend{workers: workers}
}

func (p *parallelBackend) Name() string { return "parallel" }

func (p *parallelBackend) Setup(ctx context.Context) error {
	return ctx.Err()
}

func (p *parallelBackend) For(n int, fn func(lo, hi int)) {
	if n <= 0 {
		return
	}
	workers := p.workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		fn(0, n)
		return
	}
	chunk := (n + workers - 1) / workers
	var g errgroup.Group
	g.SetLimit(workers)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			fn(lo, hi)
			return nil
		})
	}
	_ = g.Wait()
}
