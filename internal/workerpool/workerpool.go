// Package workerpool bounds CPU-bound background work (resolving
// discovered tool input schemas) to a fixed number of concurrent
// goroutines. Built on golang.org/x/sync/errgroup's
// SetLimit, the same module the connection pool already depends on for
// singleflight, rather than hand-rolling a channel-and-goroutine pool the
// corpus has no precedent for.
package workerpool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Pool runs submitted work with bounded concurrency.
type Pool struct {
	limit int
}

// New builds a Pool that runs at most limit tasks concurrently. limit <= 0
// means unbounded, matching errgroup.Group's own SetLimit contract.
func New(limit int) *Pool {
	return &Pool{limit: limit}
}

// Run executes every task, waits for all of them to finish, and returns
// the first error. That first error cancels the ctx passed to the tasks,
// per errgroup.WithContext; tasks not yet started still run, with the
// cancelled ctx.
func (p *Pool) Run(ctx context.Context, tasks ...func(ctx context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	if p.limit > 0 {
		g.SetLimit(p.limit)
	}
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			return task(gctx)
		})
	}
	return g.Wait()
}
